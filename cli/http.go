package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	home "home.systems/http"
)

// HTTPCmd is an ad hoc HTTP client for operators scripting against a
// running mom or cub: deploying a bundle, requesting a derivation, or
// probing an endpoint without writing a one-off script.
var HTTPCmd = &cobra.Command{
	Use:   "http <method> <url>",
	Short: "make an ad hoc HTTP request against a running mom or cub",
	Args:  cobra.ExactArgs(2),
	RunE:  runHTTP,
}

var (
	httpHeaders  []string
	httpForm     []string
	httpFiles    []string
	httpJSON     string
	httpSaveTo   string
	httpTimeout  int
	httpRetries  int
	httpInsecure bool
)

func init() {
	HTTPCmd.Flags().StringArrayVarP(&httpHeaders, "header", "H", nil, "request header as key:value (repeatable)")
	HTTPCmd.Flags().StringArrayVarP(&httpForm, "form", "F", nil, "form field as key=value (repeatable)")
	HTTPCmd.Flags().StringArrayVar(&httpFiles, "file", nil, "file upload as field=path (repeatable)")
	HTTPCmd.Flags().StringVar(&httpJSON, "json", "", "request body as a raw JSON string")
	HTTPCmd.Flags().StringVar(&httpSaveTo, "save-to", "", "write the response body to this path instead of stdout")
	HTTPCmd.Flags().IntVar(&httpTimeout, "timeout", 30, "request timeout in seconds")
	HTTPCmd.Flags().IntVar(&httpRetries, "retries", 0, "number of retries on a transient failure")
	HTTPCmd.Flags().BoolVar(&httpInsecure, "insecure", false, "skip TLS certificate verification")

	RootCmd.AddCommand(HTTPCmd)
}

func runHTTP(cmd *cobra.Command, args []string) error {
	req := home.NewRequest(strings.ToUpper(args[0]), args[1])
	req.Timeout = httpTimeout
	req.RetryCount = httpRetries
	req.InsecureSkipVerify = httpInsecure
	req.SaveTo = httpSaveTo
	req.JSONBody = httpJSON

	for _, h := range httpHeaders {
		key, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("cli: malformed header %q, expected key:value", h)
		}
		req.Headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	for _, f := range httpForm {
		key, value, ok := strings.Cut(f, "=")
		if !ok {
			return fmt.Errorf("cli: malformed form field %q, expected key=value", f)
		}
		req.FormData[key] = value
	}
	for _, f := range httpFiles {
		field, path, ok := strings.Cut(f, "=")
		if !ok {
			return fmt.Errorf("cli: malformed file upload %q, expected field=path", f)
		}
		req.Files[field] = path
	}

	resp, err := home.Execute(req)
	if resp == nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "%s (%s)\n", resp.Status, resp.Duration)
	if httpSaveTo == "" {
		fmt.Println(resp.BodyString)
	}
	return err
}
