// Package server exposes an open catalog over HTTP. Features are served as
// GeoJSON.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/featsource/internal/catalog"
	"github.com/sells-group/featsource/internal/feature"
	"github.com/sells-group/featsource/internal/layer"
)

// DefaultLimit caps feature listings when no limit is given.
const DefaultLimit = 100

// MaxLimit is the largest accepted limit.
const MaxLimit = 10000

// Server serves one catalog. The catalog is not safe for concurrent use, so
// every handler holds mu.
type Server struct {
	mu  sync.Mutex
	cat *catalog.Catalog
	log *zap.Logger
}

// LayerInfo is the JSON form of a layer.
type LayerInfo struct {
	Index    int         `json:"index"`
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Geometry string      `json:"geometry"`
	Writable bool        `json:"writable"`
	Fields   []FieldInfo `json:"fields,omitempty"`
}

// FieldInfo is the JSON form of a field definition.
type FieldInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Width    int    `json:"width,omitempty"`
	Nullable bool   `json:"nullable"`
	ReadOnly bool   `json:"read_only,omitempty"`
}

// New returns a Server for an open catalog.
func New(cat *catalog.Catalog) *Server {
	return &Server{cat: cat, log: zap.L().With(zap.String("component", "server"))}
}

// Handler builds the router. allowedOrigins configures CORS; empty allows
// any origin.
func (s *Server) Handler(allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Route("/layers", func(r chi.Router) {
		r.Get("/", s.listLayers)
		r.Route("/{index}", func(r chi.Router) {
			r.Get("/", s.getLayer)
			r.Delete("/", s.deleteLayer)
			r.Get("/features", s.listFeatures)
			r.Get("/features/{fid}", s.getFeature)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusOf maps an error kind to an HTTP status.
func statusOf(err error) int {
	switch feature.KindOf(err) {
	case feature.KindNotFound, feature.KindBounds:
		return http.StatusNotFound
	case feature.KindUnsupported:
		return http.StatusMethodNotAllowed
	case feature.KindState:
		return http.StatusConflict
	case feature.KindSchema:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	n := s.cat.Len()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "layers": n})
}

func info(i int, l *layer.Layer, withFields bool) LayerInfo {
	li := LayerInfo{
		Index:    i,
		Name:     l.Name(),
		Path:     l.Path(),
		Geometry: string(l.Schema().GeomType()),
		Writable: l.TestCapability(layer.CapSequentialWrite),
	}
	if withFields {
		for _, fd := range l.Schema().Fields() {
			li.Fields = append(li.Fields, FieldInfo{
				Name: fd.Name, Type: string(fd.Type), Width: fd.Width,
				Nullable: fd.Nullable, ReadOnly: fd.ReadOnly,
			})
		}
	}
	return li
}

func (s *Server) listLayers(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]LayerInfo, 0, s.cat.Len())
	for i, l := range s.cat.Layers() {
		out = append(out, info(i, l, false))
	}
	writeJSON(w, http.StatusOK, out)
}

// layerAt resolves {index}; the caller must hold mu.
func (s *Server) layerAt(w http.ResponseWriter, r *http.Request) (int, *layer.Layer, bool) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid layer index")
		return 0, nil, false
	}
	l, ok := s.cat.Layer(i)
	if !ok {
		writeError(w, http.StatusNotFound, "no such layer")
		return 0, nil, false
	}
	return i, l, true
}

func (s *Server) getLayer(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, l, ok := s.layerAt(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, info(i, l, true))
}

func (s *Server) deleteLayer(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, l, ok := s.layerAt(w, r)
	if !ok {
		return
	}
	path := l.Path()
	if err := s.cat.RemoveLayer(r.Context(), i); err != nil {
		s.log.Warn("remove layer failed", zap.String("layer", path), zap.Error(err))
		writeError(w, statusOf(err), err.Error())
		return
	}
	s.log.Info("layer removed", zap.String("layer", path))
	w.WriteHeader(http.StatusNoContent)
}

func toGeoJSON(f *feature.Feature) *geojson.Feature {
	return &geojson.Feature{
		ID:         strconv.FormatInt(f.FID, 10),
		Geometry:   f.Geometry,
		Properties: f.Properties(),
	}
}

func (s *Server) listFeatures(w http.ResponseWriter, r *http.Request) {
	limit := DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(MaxLimit))
			return
		}
		limit = n
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, l, ok := s.layerAt(w, r)
	if !ok {
		return
	}
	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	it := l.Iterate()
	for len(fc.Features) < limit && it.Next(r.Context()) {
		fc.Features = append(fc.Features, toGeoJSON(it.Feature()))
	}
	if err := it.Err(); err != nil {
		s.log.Error("iterate failed", zap.String("layer", l.Path()), zap.Error(err))
		writeError(w, statusOf(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_ = json.NewEncoder(w).Encode(fc)
}

func (s *Server) getFeature(w http.ResponseWriter, r *http.Request) {
	fid, err := strconv.ParseInt(chi.URLParam(r, "fid"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid fid")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, l, ok := s.layerAt(w, r)
	if !ok {
		return
	}
	f, err := l.Feature(r.Context(), fid)
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_ = json.NewEncoder(w).Encode(toGeoJSON(f))
}
