package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var openCmd = &cobra.Command{
	Use:   "open <url>",
	Short: "Navigate the page to a URL",
	Long:  "Navigates the attached page. Bare hostnames get https://, localhost addresses get http://.",
	Args:  cobra.ExactArgs(1),
	RunE:  runOpen,
}

func init() {
	rootCmd.AddCommand(openCmd)
}

// normalizeURL adds protocol to URL if missing.
// Uses http:// for localhost/127.0.0.1/0.0.0.0, https:// otherwise.
func normalizeURL(url string) string {
	// Already has protocol
	if strings.Contains(url, "://") {
		return url
	}

	// Check for localhost or local IPs
	lower := strings.ToLower(url)
	if strings.HasPrefix(lower, "localhost") ||
		strings.HasPrefix(lower, "127.0.0.1") ||
		strings.HasPrefix(lower, "0.0.0.0") {
		return "http://" + url
	}

	// Default to https
	return "https://" + url
}

func runOpen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return outputError(err.Error())
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	s, created, err := ensureSession(ctx, cfg)
	if err != nil {
		return outputError(err.Error())
	}
	defer releaseSession(created)

	target := normalizeURL(args[0])

	result, err := s.client.Call(ctx, "Page.navigate", map[string]string{"url": target})
	if err != nil {
		return outputError(err.Error())
	}

	var nav struct {
		FrameID   string `json:"frameId"`
		ErrorText string `json:"errorText"`
	}
	if err := json.Unmarshal(result, &nav); err != nil {
		return outputError(err.Error())
	}
	if nav.ErrorText != "" {
		return outputError(fmt.Sprintf("navigate %s: %s", target, nav.ErrorText))
	}

	if JSONOutput {
		return outputSuccess(map[string]any{"url": target, "frameId": nav.FrameID})
	}
	fmt.Printf("opened %s\n", target)
	return nil
}
