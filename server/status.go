package server

import (
	"net/http"

	"github.com/coreos/pkg/capnslog"
	"github.com/coreos/pkg/httputil"
)

// plog gives the server package its own capnslog logger, the same style
// coreos-derived projects (etcd's mvcc package among them) use for
// per-package log scoping; ridgekv's structured request/error logging still
// goes through pingcap/log elsewhere, this is only for the status surface's
// own diagnostics.
var plog = capnslog.NewPackageLogger("github.com/ridgekv/ridgekv", "server")

// storeStatus is the JSON body served at /status: just enough for an
// operator or a test harness to ask "is this store up, and is it a
// leader for anything" without needing a client library.
type storeStatus struct {
	StoreID   uint64   `json:"store_id"`
	RegionIDs []uint64 `json:"region_ids"`
	LeaderOf  []uint64 `json:"leader_of"`
}

// StatusHandler returns the http.Handler the cmd package mounts at /status.
func (s *Server) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := storeStatus{StoreID: s.store.StoreID()}
		for _, regionID := range s.store.RegionIDs() {
			st.RegionIDs = append(st.RegionIDs, regionID)
			if s.store.IsLeader(regionID) {
				st.LeaderOf = append(st.LeaderOf, regionID)
			}
		}
		httputil.WriteJSONResponse(w, http.StatusOK, st)
		plog.Debugf("served status for store %d: %d regions", st.StoreID, len(st.RegionIDs))
	})
}
