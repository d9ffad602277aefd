package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"forestwatch/internal/ingest"
	"forestwatch/internal/pipeline"
)

func main() {
	var (
		addrF    = flag.String("url", "http://localhost:8080", "URL to service host")
		tokenF   = flag.String("token", os.Getenv("FORESTWATCH_TOKEN"), "Bearer token for the API")
		verboseF = flag.Bool("verbose", false, "Print request and response details")
		vF       = flag.Bool("v", false, "Print request and response details")
		timeoutF = flag.Int("timeout", 30, "Maximum number of seconds to wait for response")
	)
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	u, err := url.Parse(*addrF)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid URL %#v: %s\n", *addrF, err)
		os.Exit(1)
	}
	c := newClient(u.Scheme, u.Host, *timeoutF, *verboseF || *vF, *tokenF)

	ctx := context.Background()
	data, err := run(ctx, c, flag.Arg(0), flag.Args()[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	if data != nil {
		m, _ := json.MarshalIndent(data, "", "    ")
		fmt.Println(string(m))
	}
}

func run(ctx context.Context, c *client, cmd string, args []string) (any, error) {
	switch cmd {
	case "status":
		var out map[string]any
		err := c.call(ctx, "GET", "/api/v1/status", nil, nil, &out)
		return out, err

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		user := fs.String("user", "admin", "Username")
		pass := fs.String("password", "", "Password")
		fs.Parse(args)
		var out map[string]any
		body := map[string]string{"username": *user, "password": *pass}
		err := c.call(ctx, "POST", "/api/v1/auth/login", nil, body, &out)
		return out, err

	case "alerts":
		fs := flag.NewFlagSet("alerts", flag.ExitOnError)
		camera := fs.String("camera", "", "Only alerts of this camera")
		limit := fs.Int("limit", 20, "Maximum number of alerts")
		fs.Parse(args)
		q := url.Values{}
		if *camera != "" {
			q.Set("camera_id", *camera)
		}
		q.Set("limit", strconv.Itoa(*limit))
		var out map[string]any
		err := c.call(ctx, "GET", "/api/v1/alerts", q, nil, &out)
		return out, err

	case "notify-test":
		var out map[string]any
		err := c.call(ctx, "POST", "/api/v1/notify/test", nil, nil, &out)
		return out, err

	case "replay":
		fs := flag.NewFlagSet("replay", flag.ExitOnError)
		interval := fs.Duration("interval", 200*time.Millisecond, "Delay between frames")
		fs.Parse(args)
		if fs.NArg() != 1 {
			return nil, fmt.Errorf("replay needs a JSON lines file")
		}
		n, err := replay(ctx, c, fs.Arg(0), *interval)
		return map[string]int{"frames": n}, err

	case "simulate":
		fs := flag.NewFlagSet("simulate", flag.ExitOnError)
		image := fs.String("image", "", "JPEG sent as the frame")
		camera := fs.String("camera", "cam0", "Camera ID")
		duration := fs.Duration("duration", 3*time.Second, "How long the person stays in view")
		fps := fs.Int("fps", 5, "Frames per second")
		confidence := fs.Float64("confidence", 0.98, "Person detection confidence")
		fs.Parse(args)
		n, err := simulate(ctx, c, simulation{
			imagePath:  *image,
			cameraID:   *camera,
			duration:   *duration,
			fps:        *fps,
			confidence: *confidence,
		})
		return map[string]int{"frames": n}, err

	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}

// replay posts every line of a JSON lines file as one frame event
func replay(ctx context.Context, c *client, path string, interval time.Duration) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1<<20), 32<<20)
	n := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var p ingest.Payload
		if err := json.Unmarshal(line, &p); err != nil {
			return n, fmt.Errorf("line %d: %w", n+1, err)
		}
		if err := c.call(ctx, "POST", "/api/v1/frames", nil, &p, nil); err != nil {
			return n, err
		}
		n++
		time.Sleep(interval)
	}
	return n, scanner.Err()
}

type simulation struct {
	imagePath  string
	cameraID   string
	duration   time.Duration
	fps        int
	confidence float64
}

// simulate posts a steady person detection so the alert hold can be
// exercised without an inference pipeline
func simulate(ctx context.Context, c *client, s simulation) (int, error) {
	if s.fps <= 0 {
		s.fps = 5
	}
	var frame string
	if s.imagePath != "" {
		raw, err := os.ReadFile(s.imagePath)
		if err != nil {
			return 0, err
		}
		frame = base64.StdEncoding.EncodeToString(raw)
	}

	step := time.Second / time.Duration(s.fps)
	total := int(s.duration/step) + 1
	for i := 0; i < total; i++ {
		p := &ingest.Payload{
			CameraID:  s.cameraID,
			Seq:       uint64(i),
			Timestamp: time.Now(),
			Width:     640,
			Height:    480,
			Detections: []pipeline.Detection{{
				Label:      "person",
				Confidence: s.confidence,
				BBox:       pipeline.BBox{XMin: 0.4, YMin: 0.2, Width: 0.2, Height: 0.6},
			}},
			Frame: frame,
		}
		if err := c.call(ctx, "POST", "/api/v1/frames", nil, p, nil); err != nil {
			return i, err
		}
		if i < total-1 {
			time.Sleep(step)
		}
	}
	return total, nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `%s is a command line client for the forestwatch API.
Usage:
    %s [-url URL][-token TOKEN][-timeout SECONDS][-verbose|-v] COMMAND [flags] [args]

Commands:
    status                         Show controller and service status
    login -user U -password P      Obtain an API token
    alerts [-camera ID][-limit N]  List recent alerts
    notify-test                    Send a test notification
    replay [-interval D] FILE      Post frame events from a JSON lines file
    simulate [-image JPEG][-camera ID][-duration D][-fps N][-confidence C]
                                   Post a sustained person detection

Example:
    %s simulate -image testdata/person.jpg -duration 3s
`, os.Args[0], os.Args[0], os.Args[0])
}
