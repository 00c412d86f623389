/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Command ingressd-demo wires a minimal application on top of the ingress
// pipeline so the core can be exercised end to end. Flags rather than a
// config file: configuration loading belongs to the embedding application,
// not the core.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/lucmarin/ingressd/duration"
	"github.com/lucmarin/ingressd/health"
	"github.com/lucmarin/ingressd/internal/testsupport"
	"github.com/lucmarin/ingressd/logger"
	"github.com/lucmarin/ingressd/reqcontext"
	"github.com/lucmarin/ingressd/responsepipeline"
	"github.com/lucmarin/ingressd/server"
)

func main() {
	listen := flag.String("listen", "127.0.0.1:8443", "application listen address")
	adminListen := flag.String("admin-listen", "127.0.0.1:8444", "admin surface listen address")
	cert := flag.String("cert", "", "PEM certificate file (self-signed generated if empty)")
	key := flag.String("key", "", "PEM private key file (self-signed generated if empty)")
	flag.Parse()

	certPEM, keyPEM, err := loadOrGenerateCert(*cert, *key)
	if err != nil {
		logger.ErrorLevel.LogErrorCtxf("main", err, "failed to load TLS material")
		os.Exit(1)
	}

	cfg := &server.Config{
		Listen:                      *listen,
		MaxConnections:              1024,
		SoftReqPerSec:               50,
		HardReqPerSec:               100,
		Burst:                       20,
		IdleTimeout:                 duration.Duration(0),
		Cert:                        certPEM,
		Key:                         keyPEM,
		ServiceName:                 "ingressd-demo",
		Version:                     "dev",
		BuildCommit:                 "unknown",
		CORS:                        responsepipeline.CORSConfig{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET", "POST"}},
		ServeAdminRoutes:            true,
		AdminListen:                 *adminListen,
		RunBackgroundHealthChecks:   true,
		AsyncHealthCheckThreadCount: 4,
		ConsoleReporter:             true,
	}

	orch := server.New(cfg, nil)

	orch.Routes.Register(http.MethodGet, "/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := reqcontext.Param(r, "id")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
	})

	orch.Routes.Register(http.MethodGet, "/ping", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "PONG")
	})

	orch.Health.Register(health.CheckFunc{
		CheckName: "self",
		Fn: func(ctx context.Context) error {
			return nil
		},
	})

	go orch.WaitNotify()

	if err := orch.ListenAndServe(); err != nil {
		logger.ErrorLevel.LogErrorCtxf("main", err, "server exited with error")
		os.Exit(1)
	}

	os.Exit(0)
}

func loadOrGenerateCert(certPath, keyPath string) (string, string, error) {
	if certPath == "" || keyPath == "" {
		logger.InfoLevel.Logf("no cert/key supplied, generating an ephemeral self-signed pair")
		return testsupport.GenerateSelfSigned()
	}

	certBytes, err := os.ReadFile(certPath)
	if err != nil {
		return "", "", err
	}
	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return "", "", err
	}

	return string(certBytes), string(keyBytes), nil
}
