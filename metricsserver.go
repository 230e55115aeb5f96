// Copyright 2026 repostats contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// metricsServer serves the Message Log / Event Bus / Plugin Engine
// Prometheus collectors on /metrics.
type metricsServer struct {
	srv *http.Server
}

func newMetricsServer(addr string) *metricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &metricsServer{srv: &http.Server{Addr: addr, Handler: mux}}
}

func (m *metricsServer) Start() {
	logrus.Infof("serving metrics on %s/metrics", m.srv.Addr)
	if err := m.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logrus.Errorf("metrics server: %v", err)
	}
}

func (m *metricsServer) Stop() {
	_ = m.srv.Shutdown(context.Background())
}
