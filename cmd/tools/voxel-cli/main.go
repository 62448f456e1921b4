package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/annel0/voxel-engine/internal/api"
)

const defaultServerAddr = "http://localhost:8088"

func main() {
	var (
		serverAddr = flag.String("server", defaultServerAddr, "API server address")
		command    = flag.String("cmd", "stats", "Command: stats, token, block, set-block, remove-block, bodies, spawn, act, mesh, save")
		secret     = flag.String("secret", os.Getenv("VOXEL_JWT_SECRET"), "JWT secret for token command and mutating requests")
		operator   = flag.String("operator", "voxel-cli", "Operator name written into issued tokens")
		pos        = flag.String("pos", "0,0,0", "Cell or world position x,y,z")
		kind       = flag.String("kind", "stone", "Block kind, body type or action kind")
		id         = flag.Uint64("id", 0, "Body or sector ID")
		velocity   = flag.String("velocity", "0,0,0", "Velocity for move action")
		climb      = flag.Float64("climb", 1, "Direction for climb action")
		mode       = flag.String("mode", "ground", "Mode for mode action")
	)
	flag.Parse()

	c := &client{base: strings.TrimRight(*serverAddr, "/"), http: &http.Client{Timeout: 10 * time.Second}}
	if *secret != "" {
		auth, err := api.NewAuthenticator(*secret, time.Hour)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		if c.token, err = auth.Issue(*operator); err != nil {
			log.Fatalf("❌ %v", err)
		}
	}

	var err error
	switch *command {
	case "token":
		if c.token == "" {
			log.Fatalf("❌ Нужен -secret")
		}
		fmt.Println(c.token)
	case "stats":
		err = c.call(http.MethodGet, "/api/stats", nil)
	case "block":
		err = c.call(http.MethodGet, "/api/blocks?"+cellQuery(*pos), nil)
	case "set-block":
		cell := parseInts(*pos)
		err = c.call(http.MethodPost, "/api/blocks", api.SetBlockRequest{Position: cell, Kind: *kind})
	case "remove-block":
		err = c.call(http.MethodDelete, "/api/blocks?"+cellQuery(*pos), nil)
	case "bodies":
		err = c.call(http.MethodGet, "/api/bodies", nil)
	case "spawn":
		err = c.call(http.MethodPost, "/api/bodies", api.SpawnBodyRequest{Type: *kind, Position: parseFloats(*pos)})
	case "act":
		err = c.call(http.MethodPost, fmt.Sprintf("/api/bodies/%d/actions", *id), api.ActionRequest{
			Kind:     *kind,
			Velocity: parseFloats(*velocity),
			Climb:    *climb,
			Mode:     *mode,
		})
	case "mesh":
		err = c.call(http.MethodGet, fmt.Sprintf("/api/sectors/%d/mesh", *id), nil)
	case "save":
		err = c.call(http.MethodPost, "/api/save", nil)
	default:
		log.Fatalf("❌ Unknown command: %s", *command)
	}
	if err != nil {
		log.Fatalf("❌ %s failed: %v", *command, err)
	}
}

type client struct {
	base  string
	token string
	http  *http.Client
}

// call выполняет запрос и печатает ответ с отступами
func (c *client) call(method, path string, body interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		raw = pretty.Bytes()
	}
	fmt.Printf("%s\n", raw)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %s", resp.Status)
	}
	return nil
}

func cellQuery(s string) string {
	v := parseInts(s)
	return fmt.Sprintf("x=%d&y=%d&z=%d", v[0], v[1], v[2])
}

func parseInts(s string) [3]int {
	var out [3]int
	for i, f := range parseFloats(s) {
		out[i] = int(f)
	}
	return out
}

func parseFloats(s string) [3]float64 {
	var out [3]float64
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		log.Fatalf("❌ Ожидалось x,y,z: %q", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			log.Fatalf("❌ Неверное число %q: %v", p, err)
		}
		out[i] = v
	}
	return out
}
