// cutl 是短链服务的命令行客户端。
//
//	cutl [-c code] [-t ttl] [-s server] <url>
//	cutl stats [-s server] [-json] <code>
//
// CUTL_SERVER 和 CUTL_TOKEN 环境变量分别提供默认服务地址和 Bearer token。
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"cutl.local/internal/app/shortlink"
	"cutl.local/internal/app/shortlink/client"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == "stats" {
		return runStats(ctx, args[1:], stdout, stderr)
	}
	return runShorten(ctx, args, stdout, stderr)
}

// parseInterspersed 允许 flag 出现在位置参数之后，如 cutl https://x -t 3d
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return positional, nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

func serverFlag(fs *flag.FlagSet) *string {
	def := os.Getenv("CUTL_SERVER")
	if def == "" {
		def = client.DefaultServer
	}
	s := fs.String("server", def, "cutl server URL (env CUTL_SERVER)")
	fs.StringVar(s, "s", def, "shorthand for -server")
	return s
}

func runShorten(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("cutl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	code := fs.String("code", "", "custom short code (1-32 chars, letters, digits, - and _)")
	fs.StringVar(code, "c", "", "shorthand for -code")
	ttl := fs.String("ttl", "", "time to live, e.g. 5m, 1h, 3d, 30d")
	fs.StringVar(ttl, "t", "", "shorthand for -ttl")
	server := serverFlag(fs)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: cutl [-c code] [-t ttl] [-s server] <url>")
		fmt.Fprintln(stderr, "       cutl stats [-s server] [-json] <code>")
		fs.PrintDefaults()
	}

	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return 2
	}
	if len(positional) != 1 {
		fs.Usage()
		return 2
	}
	rawURL := positional[0]

	// 本地先用服务端同一套规则校验，省一次往返
	if err := shortlink.ValidateURL(rawURL); err != nil {
		return fail(stderr, err)
	}
	req := client.ShortenRequest{URL: rawURL}
	if *code != "" {
		if err := shortlink.ValidateCode(*code); err != nil {
			return fail(stderr, err)
		}
		req.Code = code
	}
	if *ttl != "" {
		if _, err := shortlink.ParseTTL(*ttl); err != nil {
			return fail(stderr, err)
		}
		req.TTL = ttl
	}

	resp, err := client.New(*server, os.Getenv("CUTL_TOKEN")).Shorten(ctx, req)
	if err != nil {
		return fail(stderr, err)
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "✓ Short URL created")
	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "  Short URL: %s\n", resp.ShortURL)
	fmt.Fprintf(stdout, "  Code:      %s\n", resp.Code)
	fmt.Fprintf(stdout, "  Expires:   %s\n", time.Unix(resp.ExpiresAt, 0).Format(time.RFC3339))
	fmt.Fprintln(stdout)
	return 0
}

func runStats(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("cutl stats", flag.ContinueOnError)
	fs.SetOutput(stderr)
	asJSON := fs.Bool("json", false, "print the raw report as JSON")
	server := serverFlag(fs)

	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return 2
	}
	if len(positional) != 1 {
		fmt.Fprintln(stderr, "usage: cutl stats [-s server] [-json] <code>")
		return 2
	}

	report, err := client.New(*server, os.Getenv("CUTL_TOKEN")).Stats(ctx, positional[0])
	if err != nil {
		return fail(stderr, err)
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fail(stderr, err)
		}
		return 0
	}
	printReport(stdout, report)
	return 0
}

func printReport(w io.Writer, r shortlink.Report) {
	fmt.Fprintf(w, "%s -> %s\n", r.Code, r.OriginalURL)
	fmt.Fprintf(w, "  created %s, expires %s\n",
		time.Unix(r.CreatedAt, 0).Format(time.RFC3339), time.Unix(r.ExpiresAt, 0).Format(time.RFC3339))
	fmt.Fprintf(w, "  total visits: %d\n", r.TotalVisits)

	printCounts(w, "countries", r.Countries)
	printCounts(w, "referers", r.Referers)
	if len(r.Daily) > 0 {
		fmt.Fprintln(w, "  daily:")
		for _, d := range r.Daily {
			fmt.Fprintf(w, "    %s  %d\n", d.Date, d.Count)
		}
	}
}

func printCounts(w io.Writer, title string, stats []shortlink.CountStat) {
	if len(stats) == 0 {
		return
	}
	fmt.Fprintf(w, "  %s:\n", title)
	for _, s := range stats {
		v := "(unknown)"
		if s.Value != nil {
			v = *s.Value
		}
		fmt.Fprintf(w, "    %-24s %d\n", v, s.Count)
	}
}

func fail(stderr io.Writer, err error) int {
	hint := "Request failed"
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusBadRequest:
			hint = "Invalid request"
		case http.StatusUnauthorized:
			hint = "Unauthorized - check your CUTL_TOKEN"
		case http.StatusNotFound:
			hint = "Not found"
		case http.StatusConflict:
			hint = "Code already exists"
		case http.StatusTooManyRequests:
			hint = "Rate limited - try again later"
		default:
			if apiErr.Status >= 500 {
				hint = "Server error - try again later"
			}
		}
		err = errors.New(apiErr.Message)
	} else if errors.Is(err, shortlink.ErrInvalidURL) || errors.Is(err, shortlink.ErrInvalidCode) || errors.Is(err, shortlink.ErrInvalidTTL) {
		hint = "Invalid input"
	}
	fmt.Fprintf(stderr, "\n✗ Error\n  %s: %v\n\n", hint, err)
	return 1
}
