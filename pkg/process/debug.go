// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package process

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/spacemonkeygo/monkit/v3/present"
	"go.uber.org/zap"
)

var debugAddr = flag.String("debug.addr", "", "address to listen on for debug endpoints")

func init() {
	// net/http/pprof registers itself on the default mux as an import
	// side effect; clear it so the handlers only exist on the debug mux.
	*http.DefaultServeMux = http.ServeMux{}
}

// InitDebug starts the debug listener when debug.addr is set. It serves
// pprof, the monkit registry under /mon/, a Prometheus text rendering
// under /metrics and a /health probe.
func InitDebug(logger *zap.Logger, r *monkit.Registry) error {
	if *debugAddr == "" {
		return nil
	}

	var mux http.ServeMux
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/mon/", http.StripPrefix("/mon", present.HTTP(r)))
	mux.HandleFunc("/metrics", prometheus(r))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, "OK")
	})

	ln, err := net.Listen("tcp", *debugAddr)
	if err != nil {
		return Error.Wrap(err)
	}
	go func() {
		logger.Debug("debug server listening", zap.Stringer("addr", ln.Addr()))
		if err := (&http.Server{Handler: &mux}).Serve(ln); err != nil {
			logger.Error("debug server died", zap.Error(err))
		}
	}()
	return nil
}

func prometheus(r *monkit.Registry) http.HandlerFunc {
	// writes https://prometheus.io/docs/instrumenting/exposition_formats/
	return func(w http.ResponseWriter, req *http.Request) {
		r.Stats(func(key monkit.SeriesKey, field string, val float64) {
			measurement := sanitize(key.Measurement)
			var metrics []string
			for tag, tagVal := range key.Tags.All() {
				metrics = append(metrics, sanitize(tag)+"=\""+sanitize(tagVal)+"\"")
			}
			metrics = append(metrics, "field=\""+sanitize(field)+"\"")

			_, _ = fmt.Fprintf(w, "# TYPE %s gauge\n%s{%s} %g\n",
				measurement, measurement, strings.Join(metrics, ","), val)
		})
	}
}

// sanitize produces a valid prometheus metric name:
// [a-zA-Z_:][a-zA-Z0-9_:]*, colons excluded because they are reserved
// for recording rules.
func sanitize(val string) string {
	if val == "" {
		return val
	}
	if '0' <= val[0] && val[0] <= '9' {
		val = "_" + val
	}
	return strings.Map(func(r rune) rune {
		switch {
		case 'a' <= r && r <= 'z':
			return r
		case 'A' <= r && r <= 'Z':
			return r
		case '0' <= r && r <= '9':
			return r
		default:
			return '_'
		}
	}, val)
}
