package test_jobs

import (
	"testing"

	"github.com/docmill/docmill/models"
	"github.com/docmill/docmill/models/jobs"
	"github.com/docmill/docmill/test"
)

// setup.PrepareAll seeds the registry, so after SetUp every built-in type is
// present with its retry budget and default priority.
func TestRegistryHasDefaults(t *testing.T) {
	test.SetUp(t)
	defer test.TearDown(t)
	for _, name := range models.AllJobTypes {
		job, err := jobs.Get(name)
		test.AssertNotError(t, err, string(name))
		test.AssertEquals(t, job.Name, name)
		test.AssertEquals(t, job.MaxAttempts, jobs.MaxAttempts)
		test.AssertEquals(t, job.Priority, name.DefaultPriority())
	}
}

func TestCreateDefaultsIsIdempotent(t *testing.T) {
	test.SetUp(t)
	defer test.TearDown(t)
	test.AssertNotError(t, jobs.CreateDefaults(), "")
	test.AssertNotError(t, jobs.CreateDefaults(), "")
	all, err := jobs.GetAll()
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, len(all), len(models.AllJobTypes))
}
