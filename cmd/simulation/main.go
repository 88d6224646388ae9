package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"ai-studynotes-be/pkg/sseclient"

	"github.com/fatih/color"
)

// Exercises the generation stream end to end against a running server:
// full run first, then a targeted quiz regeneration.

var (
	baseURL = flag.String("base-url", "http://localhost:3000/api", "API base URL")
	noteID  = flag.String("note-id", "", "note to generate for (required)")
	token   = flag.String("token", os.Getenv("ACCESS_TOKEN"), "bearer token")
	stage   = flag.String("stage", "", "optional target stage (outline|flashcards|quiz|insights)")
)

type generateRequest struct {
	TargetStage string `json:"target_stage,omitempty"`
	Language    string `json:"language,omitempty"`
}

func main() {
	flag.Parse()
	if *noteID == "" || *token == "" {
		log.Fatal("both -note-id and a token are required")
	}

	header := color.New(color.FgCyan, color.Bold)
	item := color.New(color.FgGreen)
	dim := color.New(color.Faint)
	failure := color.New(color.FgRed, color.Bold)

	header.Printf("=== Generation Simulation Client ===\n")
	fmt.Printf("Note: %s\n", *noteID)

	url := fmt.Sprintf("%s/note/v1/%s/generate", *baseURL, *noteID)
	client := sseclient.New()

	start := time.Now()
	counts := map[string]int{}

	err := client.Stream(context.Background(), url, *token, generateRequest{TargetStage: *stage}, func(e sseclient.Event) {
		counts[e.Name]++
		switch e.Name {
		case "status":
			var s struct {
				Message  string `json:"message"`
				Progress int    `json:"progress"`
			}
			json.Unmarshal(e.Data, &s)
			header.Printf("[%3d%%] %s\n", s.Progress, s.Message)
		case "outline_chunk":
			var c struct {
				Chunk string `json:"chunk"`
			}
			json.Unmarshal(e.Data, &c)
			dim.Print(c.Chunk)
		case "flashcard_item":
			var f struct {
				Front string `json:"front"`
			}
			json.Unmarshal(e.Data, &f)
			item.Printf("  flashcard: %s\n", f.Front)
		case "quiz_item":
			var q struct {
				Question string `json:"question"`
			}
			json.Unmarshal(e.Data, &q)
			item.Printf("  quiz: %s\n", q.Question)
		case "final":
			header.Printf("\nDone in %v\n", time.Since(start).Round(time.Millisecond))
		case "error":
			var msg struct {
				Message string `json:"message"`
			}
			json.Unmarshal(e.Data, &msg)
			failure.Printf("\nServer error: %s\n", msg.Message)
		}
	})
	if err != nil {
		failure.Printf("Stream failed after retries: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nEvent counts:")
	for name, n := range counts {
		fmt.Printf("  %-15s %d\n", name, n)
	}
}
