package docs

import (
	"bufio"
	"os"
	"regexp"
	"slices"
	"strings"
	"testing"
)

func TestTopics(t *testing.T) {
	// This test ensures that the documentation is in sync with the code.
	// It checks two things:
	// 1. Every topic listed in docs/readme.md can be successfully loaded.
	// 2. Every .md file in the docs directory (excluding readme.md itself) is listed in docs/readme.md.

	file, err := os.Open("readme.md")
	if err != nil {
		t.Fatalf("failed to open readme.md: %v", err)
	}
	defer file.Close()

	var topicsInReadme []string
	scanner := bufio.NewScanner(file)
	topicRegex := regexp.MustCompile(`^\*\s+([^:]+):.*$`)
	for scanner.Scan() {
		if matches := topicRegex.FindStringSubmatch(scanner.Text()); len(matches) > 1 {
			topicsInReadme = append(topicsInReadme, strings.TrimSpace(matches[1]))
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("error scanning readme.md: %v", err)
	}

	for _, topic := range topicsInReadme {
		t.Run("load_"+topic, func(t *testing.T) {
			content, err := GetTopic(topic)
			if err != nil {
				t.Fatalf("GetTopic(%q) failed: %v", topic, err)
			}
			if strings.TrimSpace(content) == "" {
				t.Errorf("topic %q is empty", topic)
			}
		})
	}

	all, err := GetAllTopics()
	if err != nil {
		t.Fatalf("GetAllTopics() failed: %v", err)
	}
	for _, topic := range all {
		if !slices.Contains(topicsInReadme, topic) {
			t.Errorf("topic %q is not listed in readme.md", topic)
		}
	}
}

func TestGetTopics(t *testing.T) {
	got, err := GetTopics("timestamps", "query")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "# Timestamps") || !strings.Contains(got, "# Raw queries") {
		t.Errorf("GetTopics() misses a topic:\n%s", got)
	}

	star, err := GetTopic("*")
	if err != nil {
		t.Fatal(err)
	}
	for _, title := range []string{"# Timestamps", "# Positions", "# Anomalies", "# Raw queries"} {
		if !strings.Contains(star, title) {
			t.Errorf("GetTopic(\"*\") misses %q", title)
		}
	}

	if _, err := GetTopic("unknown"); err == nil {
		t.Error("GetTopic(\"unknown\") expected an error")
	}
}
