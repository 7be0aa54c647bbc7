// Command relaygwctl is the operator-facing control CLI: it talks to a
// running relaygwd over the admin HTTP surface (spec.md §6) and renders
// the configured connections as a table.
//
// Grounded on the teacher's main.go Fatal-on-config-error idiom for exit
// code 1, and a net.Dial probe (the inverse of main.go's net.Listen
// port-in-use check) for exit code 2 when the daemon isn't reachable.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/1-api-gateway/relaygw/internal/config"
	"github.com/1-api-gateway/relaygw/internal/credential"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	if config.Port == "" {
		fmt.Fprintln(out, "fatal: PORT is not configured")
		return 1
	}

	cmd := "status"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "status":
		return status(out)
	case "healthz":
		return healthz(out)
	default:
		fmt.Fprintf(out, "fatal: unknown subcommand %q (want status|healthz)\n", cmd)
		return 1
	}
}

// probe dials the daemon's port directly, so a refused connection is
// reported distinctly from a well-formed error response.
func probe(out io.Writer) int {
	conn, err := net.DialTimeout("tcp", "127.0.0.1:"+config.Port, 2*time.Second)
	if err != nil {
		fmt.Fprintf(out, "relaygwd is not reachable on port %s: %v\n", config.Port, err)
		return 2
	}
	_ = conn.Close()
	return 0
}

func healthz(out io.Writer) int {
	if code := probe(out); code != 0 {
		return code
	}
	fmt.Fprintln(out, "relaygwd is up")
	return 0
}

func status(out io.Writer) int {
	if code := probe(out); code != 0 {
		return code
	}

	conns, err := fetchConnections()
	if err != nil {
		fmt.Fprintf(out, "fatal: %v\n", err)
		return 1
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Provider", "Id", "Auth", "Status", "Active", "Last Error"})
	for _, c := range conns {
		table.Append([]string{
			c.ProviderId,
			c.Id,
			string(c.AuthType),
			string(c.TestStatus),
			strconv.FormatBool(c.IsActive),
			c.LastError,
		})
	}
	table.Render()
	return 0
}

func fetchConnections() ([]credential.Summary, error) {
	adminToken := config.AdminToken

	req, err := http.NewRequest(http.MethodGet, "http://127.0.0.1:"+config.Port+"/v1/connections", nil)
	if err != nil {
		return nil, err
	}
	if adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+adminToken)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("GET /v1/connections: %s: %s", resp.Status, body)
	}

	var payload struct {
		Connections []credential.Summary `json:"connections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload.Connections, nil
}
