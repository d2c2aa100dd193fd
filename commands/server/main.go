// Run the docmill API server.
//
// All of the project defaults are used. There is one authenticated user for
// basic auth, the user is "test" and the password is "hunter2". You will want
// to copy this binary and add your own authentication scheme.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	metrics "github.com/Shyp/go-simple-metrics"
	"github.com/docmill/docmill/config"
	"github.com/docmill/docmill/server"
	"github.com/docmill/docmill/services"
	"github.com/docmill/docmill/setup"
	"github.com/gorilla/handlers"
)

func configure() (http.Handler, error) {
	dbConns := config.GetIntDefault("PG_SERVER_POOL_SIZE", 10)
	if err := setup.DB(setup.DefaultConnection, dbConns); err != nil {
		return nil, err
	}

	metrics.Namespace = "docmill.server"
	metrics.Start("web")

	go setup.MeasureActiveQueries(5 * time.Second)

	// Hourly retention sweep of terminal jobs.
	go services.WatchArchivedJobs(1 * time.Hour)

	// If you run this in production, change this user.
	server.AddUser("test", "hunter2")
	return server.Get(server.DefaultAuthorizer), nil
}

func main() {
	s, err := configure()
	if err != nil {
		log.Fatal(err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "9090"
	}
	log.Printf("Listening on port %s\n", port)
	log.Fatal(http.ListenAndServe(fmt.Sprintf(":%s", port), handlers.LoggingHandler(os.Stdout, s)))
}
