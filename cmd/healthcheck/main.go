package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/valyala/fasthttp"
)

// Tiny liveness probe for container healthchecks: hits /healthz on the
// running server and exits non-zero when it is unreachable or unhealthy.
func main() {
	addr := flag.String("addr", "http://127.0.0.1:8080", "base URL of the forkchat server")
	timeout := flag.Duration("timeout", 2*time.Second, "request timeout")
	flag.Parse()

	c := &fasthttp.Client{ReadTimeout: *timeout, WriteTimeout: *timeout}
	status, body, err := c.GetTimeout(nil, *addr+"/healthz", *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck failed: %v\n", err)
		os.Exit(1)
	}
	if status != fasthttp.StatusOK {
		fmt.Fprintf(os.Stderr, "healthcheck status %d: %s\n", status, string(body))
		os.Exit(1)
	}
	fmt.Println(string(body))
}
