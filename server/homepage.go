package server

import (
	"net/http"
	"os"

	"github.com/alecthomas/template"
	"github.com/docmill/docmill/config"
)

type homepageData struct {
	Version string
	URL     string
}

var data = homepageData{
	Version: config.Version,
	URL:     os.Getenv("HOMEPAGE_IFRAME_URL"),
}

// The homepage shows the running version and embeds the dashboard configured
// via HOMEPAGE_IFRAME_URL, if any.
var homepageTemplate = template.Must(template.New("homepage").Parse(`<!doctype html>
<html>
<head>
	<style>
	html, body, #dashboard {
		height: 100%;
	}
	body {
		font-family: 'Helvetica Neue', Helvetica, Arial, sans-serif;
		margin: 0;
	}
	#dashboard {
		width: 100%;
	}
	#title {
		padding: 10px 5px;
		margin: 0;
	}
	</style>
</head>
<body>
	<h3 id="title">docmill version {{ .Version }}</h3>
	<iframe height="100%" width="100%" id="dashboard" src="{{ .URL }}">
</body>
</html>`))

func renderHomepage(w http.ResponseWriter, r *http.Request) {
	homepageTemplate.Execute(w, data)
}
