package viz

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
)

type ImageContainer struct {
	name string
	data []byte
}

type Producer interface {
	Name() string
	GetImage() *ImageContainer
	AddPlotOption(opt PlotOptions)
}

type route struct {
	method  string
	path    string
	handler httprouter.Handle
}

// Server renders registered plots on demand and serves them along with any extra
// routes (the scanner's /status endpoint). Plots are only rendered for buckets
// viewed within the last second.
type Server struct {
	images          map[string]map[string]*ImageContainer
	mu              sync.RWMutex
	srv             *http.Server
	producerBuckets map[string]map[string]Producer
	updateInterval  time.Duration
	enabled         bool
	lastViewed      map[string]time.Time
	routes          []route
	title           string
}

func NewServer(port int, updateInterval time.Duration) *Server {
	return &Server{
		images:          make(map[string]map[string]*ImageContainer),
		producerBuckets: make(map[string]map[string]Producer),
		lastViewed:      make(map[string]time.Time),
		srv:             &http.Server{Addr: fmt.Sprintf(":%d", port)},
		updateInterval:  updateInterval,
		enabled:         true,
		title:           "p25scanner",
	}
}

func (s *Server) Enable(enable bool) {
	s.mu.Lock()
	s.enabled = enable
	s.mu.Unlock()
}

func (s *Server) SetUpdateInterval(interval time.Duration) {
	s.mu.Lock()
	s.updateInterval = interval
	s.mu.Unlock()
}

func (s *Server) Register(key string, p Producer) {
	s.mu.Lock()
	bucket, ok := s.producerBuckets[key]
	if !ok {
		bucket = make(map[string]Producer)
		s.producerBuckets[key] = bucket
	}
	bucket[p.Name()] = p
	s.mu.Unlock()
}

// Handle adds a route. It must be called before Run.
func (s *Server) Handle(method, path string, handler httprouter.Handle) {
	s.routes = append(s.routes, route{method: method, path: path, handler: handler})
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) refresh() {
	s.mu.RLock()
	enabled := s.enabled
	var stale []Producer
	var staleBuckets []string
	for bucketName, bucket := range s.producerBuckets {
		if time.Since(s.lastViewed[bucketName]) >= time.Second {
			continue
		}
		for _, p := range bucket {
			stale = append(stale, p)
			staleBuckets = append(staleBuckets, bucketName)
		}
	}
	s.mu.RUnlock()

	if !enabled {
		return
	}

	var wg sync.WaitGroup
	for i, p := range stale {
		wg.Add(1)
		go func(bucket string, p Producer) {
			defer wg.Done()
			img := p.GetImage()
			if img == nil {
				return
			}
			s.mu.Lock()
			mb, ok := s.images[bucket]
			if !ok {
				mb = make(map[string]*ImageContainer)
				s.images[bucket] = mb
			}
			mb[img.name] = img
			s.mu.Unlock()
		}(staleBuckets[i], p)
	}
	wg.Wait()
}

func (s *Server) sortedBuckets() []string {
	keys := make([]string, 0, len(s.producerBuckets))
	for key := range s.producerBuckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.mu.RLock()
	buckets := s.sortedBuckets()
	s.mu.RUnlock()

	if len(buckets) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Location", "/view/"+url.PathEscape(buckets[0]))
	w.WriteHeader(http.StatusFound)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	bucket := params.ByName("bucket")

	s.mu.Lock()
	itemsForBucket, ok := s.producerBuckets[bucket]
	if ok {
		s.lastViewed[bucket] = time.Now()
	}
	interval := s.updateInterval
	s.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	// give the refresher a chance to render before the page loads
	time.Sleep(interval)

	s.mu.RLock()
	defer s.mu.RUnlock()

	w.Header().Add("Content-Type", "text/html")
	fmt.Fprintf(w, `<html><head><title>%s</title></head>`, s.title)
	fmt.Fprintf(w, `
		<script type="text/javascript">
			var toggleRefresh = true;
			function toggleOn() {
				toggleRefresh = !toggleRefresh;
			}

			function changeBucket() {
				var val = document.getElementById('bucketSelector').value;
				window.location.href = '/view/' + val;
			}
			window.onload = function() {
				for (var i = 0; i < %d; i++) {
					var img = document.getElementById('graph-' + i);
					setInterval(function(image) {
						if (toggleRefresh) {
							image.src = image.src.split("?")[0] + "?" + new Date().getTime();
						}
					}, %d, img);
				}
			}
		</script>`, len(itemsForBucket), interval.Milliseconds())
	fmt.Fprint(w, `<body style='background-color: black'>`)

	fmt.Fprint(w, `<select id="bucketSelector" onchange="changeBucket()">`)
	for _, bucketName := range s.sortedBuckets() {
		selected := ""
		if bucketName == bucket {
			selected = " selected"
		}
		fmt.Fprintf(w, `<option value="%s"%s>%s</option>`, bucketName, selected, bucketName)
	}
	fmt.Fprint(w, `</select><button onclick="toggleOn()">Refresh?</button>`)

	keys := make([]string, 0, len(itemsForBucket))
	for key := range itemsForBucket {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fmt.Fprint(w, `<div style="display: flex; flex-direction: row; flex-wrap: wrap">`)
	for idx, key := range keys {
		fmt.Fprintf(w, `<div><img id="graph-%d" src="/img/%s/%s?%d" /></div>`, idx, bucket, key, time.Now().UnixMicro())
	}
	fmt.Fprint(w, `</div></body></html>`)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	bucketName := params.ByName("bucket")
	imgName := params.ByName("img")

	s.mu.Lock()
	s.lastViewed[bucketName] = time.Now()
	img, ok := s.images[bucketName][imgName]
	s.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Add("Content-Type", "image/png")
	w.Write(img.data)
}

// Router builds the handler serving plots and the extra routes.
func (s *Server) Router() http.Handler {
	handler := httprouter.New()
	handler.GET("/", s.handleRoot)
	handler.GET("/view/:bucket", s.handleView)
	handler.GET("/img/:bucket/:img", s.handleImage)
	for _, r := range s.routes {
		handler.Handle(r.method, r.path, r.handler)
	}
	return handler
}

func (s *Server) Run(ctx context.Context) error {
	go func() {
		for {
			s.mu.RLock()
			interval := s.updateInterval
			s.mu.RUnlock()

			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
				s.refresh()
			}
		}
	}()

	s.srv.Handler = s.Router()

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
