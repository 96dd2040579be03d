package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mattjoyce/lyftr/internal/webhook"
)

func printSignHelp() {
	fmt.Println("Usage: lyftr sign --secret SECRET (--body JSON | --file PATH) [--url URL] [--curl] [--prefixed]")
	fmt.Println()
	fmt.Println("Print the HMAC-SHA256 signature of a webhook body. With --url, POST the body")
	fmt.Println("to URL/webhook with the signature header set and print the response.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --secret SECRET   Shared secret (default: $WEBHOOK_SECRET)")
	fmt.Println("  --body JSON       Body to sign")
	fmt.Println("  --file PATH       Read the body from PATH ('-' for stdin)")
	fmt.Println("  --url URL         Service base URL to POST to")
	fmt.Println("  --header NAME     Signature header (default: X-Signature)")
	fmt.Println("  --prefixed        Use the sha256=<hex> form")
	fmt.Println("  --curl            Print a curl command for URL (default http://localhost:8000)")
}

func runSign(args []string) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	secret := fs.String("secret", os.Getenv("WEBHOOK_SECRET"), "Shared secret")
	body := fs.String("body", "", "Body to sign")
	file := fs.String("file", "", "Read the body from a file ('-' for stdin)")
	url := fs.String("url", "", "Service base URL to POST to")
	header := fs.String("header", "X-Signature", "Signature header name")
	prefixed := fs.Bool("prefixed", false, "Use the sha256=<hex> form")
	curl := fs.Bool("curl", false, "Print a ready-to-run curl command instead")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "Error: --secret or WEBHOOK_SECRET is required")
		return 1
	}
	if (*body == "") == (*file == "") {
		fmt.Fprintln(os.Stderr, "Error: exactly one of --body or --file is required")
		return 1
	}

	payload := []byte(*body)
	if *file != "" {
		var err error
		payload, err = readBody(*file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	sig := webhook.Sign(*secret, payload)
	if *prefixed {
		sig = webhook.Prefixed(sig)
	}

	if *curl {
		target := *url
		if target == "" {
			target = "http://localhost:8000"
		}
		fmt.Println(curlCommand(target, *header, sig, payload))
		return 0
	}
	if *url == "" {
		fmt.Println(sig)
		return 0
	}

	status, respBody, err := postSigned(*url, *header, sig, payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("HTTP %d\n%s\n", status, strings.TrimSpace(string(respBody)))
	if status >= 300 {
		return 1
	}
	return 0
}

// curlCommand renders a curl invocation with the body quoted for a POSIX
// shell.
func curlCommand(baseURL, header, sig string, body []byte) string {
	quoted := "'" + strings.ReplaceAll(string(body), "'", `'\''`) + "'"
	return fmt.Sprintf("curl -sS -X POST %s/webhook -H 'Content-Type: application/json' -H '%s: %s' --data-binary %s",
		strings.TrimRight(baseURL, "/"), header, sig, quoted)
}

func readBody(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func postSigned(baseURL, header, sig string, body []byte) (int, []byte, error) {
	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(baseURL, "/")+"/webhook", bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(header, sig)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}
