package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/raniellyferreira/redis-inmemory-kv/storage"
)

// InfoFunc returns the document served on /info
type InfoFunc func() map[string]interface{}

// API serves the admin endpoints
type API struct {
	storage  storage.Storage
	info     InfoFunc
	router   *chi.Mux
	events   *EventHub
	upgrader websocket.Upgrader
}

// observable is implemented by storages that report keyspace changes
type observable interface {
	AddObserver(observer storage.StorageObserver)
}

// New builds the admin API. When info is nil, /info serves storage.Info().
// allowedOrigins configures CORS; an empty list allows any origin.
//
// The /events websocket is only served when stor supports observers.
func New(stor storage.Storage, info InfoFunc, allowedOrigins []string) *API {
	if info == nil {
		info = stor.Info
	}

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})

	a := &API{
		storage: stor,
		info:    info,
		router:  chi.NewRouter(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || c.OriginAllowed(r)
			},
		},
	}

	a.router.Use(middleware.Recoverer)
	a.router.Use(c.Handler)

	a.router.Get("/healthz", a.health)
	a.router.Get("/info", a.getInfo)
	a.router.Get("/keys", a.listKeys)
	a.router.Get("/keys/*", a.getKey)

	if obs, ok := stor.(observable); ok {
		a.events = NewEventHub()
		obs.AddObserver(a.events)
		a.router.Get("/events", a.streamEvents)
	}

	return a
}

// Close disconnects all /events subscribers
func (a *API) Close() {
	if a.events != nil {
		a.events.Close()
	}
}

// ServeHTTP implements http.Handler
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) getInfo(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, a.info())
}

type keysResponse struct {
	Pattern string   `json:"pattern"`
	Keys    []string `json:"keys"`
}

func (a *API) listKeys(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		pattern = "*"
	}

	keys := a.storage.Keys(pattern)
	sort.Strings(keys)
	sendJSON(w, http.StatusOK, keysResponse{Pattern: pattern, Keys: keys})
}

type keyResponse struct {
	Key    string   `json:"key"`
	Type   string   `json:"type"`
	Value  *string  `json:"value,omitempty"`
	Values []string `json:"values,omitempty"`
}

func (a *API) getKey(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		sendError(w, http.StatusBadRequest, "malformed key")
		return
	}

	resp, err := a.describe(key)
	switch {
	case errors.Is(err, errNotFound):
		sendError(w, http.StatusNotFound, "key not found")
	case errors.Is(err, storage.ErrWrongType):
		// The key changed type between the two lookups
		sendError(w, http.StatusConflict, "key changed while reading")
	case err != nil:
		sendError(w, http.StatusInternalServerError, err.Error())
	default:
		sendJSON(w, http.StatusOK, resp)
	}
}

var errNotFound = errors.New("key not found")

// keyParam returns the decoded key after /keys/. Keys may contain slashes.
// chi matches on the raw path when the URL carries escapes, so those are
// decoded here.
func keyParam(r *http.Request) (string, error) {
	key := chi.URLParam(r, "*")
	if r.URL.RawPath == "" {
		return key, nil
	}
	return url.PathUnescape(key)
}

func (a *API) describe(key string) (*keyResponse, error) {
	valueType := a.storage.Type(key)
	resp := &keyResponse{Key: key, Type: valueType.String()}

	switch valueType {
	case storage.ValueTypeString:
		value, exists, err := a.storage.Get(key)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, errNotFound
		}
		s := string(value)
		resp.Value = &s

	case storage.ValueTypeList:
		items, err := a.storage.LRange(key, 0, -1)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, errNotFound
		}
		resp.Values = make([]string, len(items))
		for i, item := range items {
			resp.Values[i] = string(item)
		}

	default:
		return nil, errNotFound
	}

	return resp, nil
}
