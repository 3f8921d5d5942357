package config

import (
	"os"
	"strings"
	"sync"
)

var (
	containerOnce   sync.Once
	inContainer     bool
	containerMarker = "/.dockerenv"
)

// InContainer reports whether the engine runs inside a Docker container.
// The result is cached after the first call.
func InContainer() bool {
	containerOnce.Do(func() {
		_, err := os.Stat(containerMarker)
		inContainer = err == nil
	})
	return inContainer
}

// DatasourceHost maps a datasource host to one reachable from this process.
// Loopback hosts are rewritten to host.docker.internal inside a container so
// procedure reads reach databases running on the Docker host.
func DatasourceHost(host string) string {
	return resolveDatasourceHost(host, InContainer())
}

func resolveDatasourceHost(host string, containerized bool) string {
	if !containerized {
		return host
	}
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return "host.docker.internal"
	}
	return host
}
