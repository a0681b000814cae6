// Chatchain CI/CD
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
// It is the main harness for handling nearly all dev operations.
package main

import (
	"context"

	"dagger/chatchain/internal/dagger"
)

// Chatchain is the main module for the chatchain CI/CD pipeline
type Chatchain struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new Chatchain CI/CD module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", ".direnv", ".devenv", "build", "tmp", "_examples"]
	source *dagger.Directory,
) *Chatchain {
	return &Chatchain{
		Source: source,
	}
}

// goContainer returns a Debian Bookworm-based Go container with the
// project source mounted. chatchain is pure Go, so CGO stays off.
//
// It is the shared foundation for tests, builds, and linting.
func (c *Chatchain) goContainer() *dagger.Container {
	return dag.Container().
		From("golang:1.25-bookworm").
		WithEnvVariable("CGO_ENABLED", "0").
		WithEnvVariable("PATH", "/go/bin:$PATH", dagger.ContainerWithEnvVariableOpts{Expand: true}).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build")).
		WithWorkdir("/src").
		WithDirectory("/src", c.Source)
}

// Test runs the chatchain unit tests via "go test"
func (c *Chatchain) Test(ctx context.Context) (string, error) {
	return c.goContainer().
		WithExec([]string{"go", "test", "-v", "./..."}).
		Stdout(ctx)
}
