package viz

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
)

type stubProducer struct {
	name string
}

func (s *stubProducer) Name() string                  { return s.name }
func (s *stubProducer) AddPlotOption(opt PlotOptions) {}
func (s *stubProducer) GetImage() *ImageContainer {
	return &ImageContainer{name: s.name, data: []byte("png")}
}

func TestServerRoutes(t *testing.T) {
	s := NewServer(0, time.Millisecond)
	s.Register("control", &stubProducer{name: "01. input"})
	s.Handle(http.MethodGet, "/status", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Write([]byte(`{"mode":"idle"}`))
	})
	router := s.Router()

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	if rec := get("/"); rec.Code != http.StatusFound || rec.Header().Get("Location") != "/view/control" {
		t.Errorf("GET / = %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if rec := get("/view/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("GET /view/missing = %d", rec.Code)
	}

	// nothing rendered until the bucket has been viewed
	if rec := get("/img/control/01.%20input"); rec.Code != http.StatusNotFound {
		t.Errorf("GET /img before render = %d", rec.Code)
	}
	s.refresh()
	if rec := get("/img/control/01.%20input"); rec.Code != http.StatusOK || rec.Body.String() != "png" {
		t.Errorf("GET /img after render = %d %q", rec.Code, rec.Body.String())
	}

	if rec := get("/status"); rec.Code != http.StatusOK || rec.Body.String() != `{"mode":"idle"}` {
		t.Errorf("GET /status = %d %q", rec.Code, rec.Body.String())
	}
}

func TestTimeDomainPlotterWindow(t *testing.T) {
	p := NewTimeDomainPlotter("symbols", 4)
	if p.GetImage() != nil {
		t.Fatal("GetImage() should be nil before the buffer fills")
	}
	p.AppendFloat([]float32{1, 2, 3})
	p.AppendFloat([]float32{4, 5, 6})
	p.mu.Lock()
	got := append([]float32(nil), p.bufFloat...)
	p.mu.Unlock()
	want := []float32{3, 4, 5, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("buffer = %v, want %v", got, want)
		}
	}
}
