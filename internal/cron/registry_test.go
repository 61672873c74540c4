package cron

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryKeepsOrderAndSkipsNil(t *testing.T) {
	r := NewRegistry(&countingJob{name: "a"}, nil, &countingJob{name: "b"})
	r.Register(nil)
	r.Register(&countingJob{name: "c"})

	assert.Equal(t, []string{"a", "b", "c"}, r.Names())
}

func TestRegistryJobsReturnsCopy(t *testing.T) {
	r := NewRegistry(&countingJob{name: "a"})
	jobs := r.Jobs()
	jobs[0] = &countingJob{name: "mutated"}

	assert.Equal(t, []string{"a"}, r.Names())
}
