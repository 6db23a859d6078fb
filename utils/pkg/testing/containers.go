package intaketesting

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go"
)

// ContainerRuntime returns an error when no Docker-compatible runtime is reachable. The
// testcontainers client panics when it cannot locate a Docker host; that panic is returned
// as an error so callers can skip container-backed tests.
func ContainerRuntime(ctx context.Context) error {
	return recoverPanic(func() error {
		provider, err := testcontainers.NewDockerProvider()
		if err != nil {
			return err
		}
		defer provider.Close()
		return provider.Health(ctx)
	})
}

// RecoverPanic runs fn and returns any panic it raises as an error.
func RecoverPanic(fn func() error) error {
	return recoverPanic(fn)
}

func recoverPanic(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("container runtime unavailable: %v", r)
		}
	}()
	return fn()
}
