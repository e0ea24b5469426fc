package integration

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

const postgresImage = "postgres:16-alpine"

// startPostgresContainer runs a disposable Postgres through the Docker CLI.
// Docker picks the host port; the container is removed on cleanup. The
// returned cleanup is never nil, even on error.
func startPostgresContainer(ctx context.Context) (string, func(), error) {
	noop := func() {}
	if _, err := exec.LookPath("docker"); err != nil {
		return "", noop, fmt.Errorf("docker not available: %w", err)
	}

	out, err := exec.CommandContext(ctx, "docker", "run", "-d", "--rm",
		"-p", "127.0.0.1::5432",
		"-e", "POSTGRES_USER=ward",
		"-e", "POSTGRES_PASSWORD=ward",
		"-e", "POSTGRES_DB=chemoward_test",
		"--label", "chemoward.integration=true",
		postgresImage,
	).CombinedOutput()
	if err != nil {
		return "", noop, fmt.Errorf("docker run %s: %w: %s", postgresImage, err, strings.TrimSpace(string(out)))
	}
	id := strings.TrimSpace(string(out))
	cleanup := func() { _ = exec.Command("docker", "stop", id).Run() }

	hostPort, err := mappedPort(ctx, id)
	if err != nil {
		cleanup()
		return "", noop, err
	}

	connStr := fmt.Sprintf("postgres://ward:ward@%s/chemoward_test?sslmode=disable", hostPort)
	if err := awaitReady(ctx, connStr, 45*time.Second); err != nil {
		cleanup()
		return "", noop, err
	}
	return connStr, cleanup, nil
}

// mappedPort asks Docker which host address it bound to the container's 5432.
func mappedPort(ctx context.Context, id string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", "port", id, "5432/tcp").Output()
	if err != nil {
		return "", fmt.Errorf("docker port: %w", err)
	}
	// One line per binding, e.g. "127.0.0.1:49153".
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	if line == "" {
		return "", fmt.Errorf("container %s exposes no port 5432", id)
	}
	return line, nil
}

// awaitReady retries a single connection with growing delays. Postgres
// restarts once during first boot, so one successful ping is not enough:
// the check runs a query.
func awaitReady(ctx context.Context, connStr string, limit time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	delay := 200 * time.Millisecond
	var lastErr error
	for {
		conn, err := pgx.Connect(ctx, connStr)
		if err == nil {
			var one int
			err = conn.QueryRow(ctx, "SELECT 1").Scan(&one)
			conn.Close(ctx)
			if err == nil {
				return nil
			}
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres not ready after %s: %v", limit, lastErr)
		case <-time.After(delay):
		}
		if delay < 2*time.Second {
			delay *= 2
		}
	}
}
