package cmd

import (
	"reflect"
	"strings"
	"testing"

	"github.com/mfenderov/bam-curate/internal/config"
)

func TestApplyCrawlFlags_Cookies(t *testing.T) {
	t.Cleanup(func() { crawlCookies = nil })

	if err := crawlCmd.Flags().Set("cookie", "consent=accepted"); err != nil {
		t.Fatalf("Set(cookie) error = %v", err)
	}
	if err := crawlCmd.Flags().Set("cookie", "lang=en"); err != nil {
		t.Fatalf("Set(cookie) error = %v", err)
	}

	cc := config.Defaults().Crawler
	cc.Cookies = []config.Cookie{{Name: "from", Value: "config"}}
	if err := applyCrawlFlags(crawlCmd, &cc); err != nil {
		t.Fatalf("applyCrawlFlags() error = %v", err)
	}
	want := []config.Cookie{{Name: "consent", Value: "accepted"}, {Name: "lang", Value: "en"}}
	if !reflect.DeepEqual(cc.Cookies, want) {
		t.Errorf("Cookies = %+v, want %+v", cc.Cookies, want)
	}

	if err := crawlCmd.Flags().Set("cookie", "missing-value"); err != nil {
		t.Fatalf("Set(cookie) error = %v", err)
	}
	if err := applyCrawlFlags(crawlCmd, &cc); err == nil {
		t.Error("applyCrawlFlags() expected error for a cookie without '='")
	}
}

func TestConvertHelp_DescribesEmbeddingBackends(t *testing.T) {
	for _, want := range []string{"word overlap, not meaning", `"remote"`} {
		if !strings.Contains(convertCmd.Long, want) {
			t.Errorf("convert help should mention %q:\n%s", want, convertCmd.Long)
		}
	}
}
