// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package health

import (
	"encoding/json"
	"net/http"
)

type componentView struct {
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	LastCheckTs int64  `json:"last_check_ts"`
}

type snapshotView struct {
	Overall    string                   `json:"overall"`
	Components map[string]componentView `json:"components"`
}

// Handler returns an http.HandlerFunc for GET /healthz: 200 with the full
// snapshot when Overall is Healthy, 503 otherwise (spec.md 7's "REST
// /healthz returns non-200" requirement).
func (a *Aggregator) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := a.Snapshot()

		view := snapshotView{
			Overall:    snap.Overall.String(),
			Components: make(map[string]componentView, len(snap.Components)),
		}
		for name, res := range snap.Components {
			cv := componentView{
				Status:      res.Status.String(),
				LastCheckTs: res.LastCheckTs.UnixMilli(),
			}
			if res.Error != nil {
				cv.Error = res.Error.Error()
			}
			view.Components[name] = cv
		}

		w.Header().Set("Content-Type", "application/json")
		if snap.Overall != StatusHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(view)
	}
}
