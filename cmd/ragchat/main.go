// Command ragchat is a terminal client for a ragserve instance. It keeps one
// conversation going, streaming answer tokens as they arrive.
//
// Commands inside the prompt:
//
//	/strategy <name>  switch retrieval strategy (adaptive, fusion, graph)
//	/new              start a fresh conversation
//	exit              leave
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	answerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type queryInput struct {
	Question  string `json:"question"`
	RAGType   string `json:"rag_type"`
	SessionID string `json:"session_id"`
}

type responseChunk struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Error     string `json:"error,omitempty"`
}

func main() {
	serverURL := flag.String("server", "http://localhost:8000", "ragserve base URL")
	strategy := flag.String("strategy", "adaptive", "retrieval strategy")
	flag.Parse()

	fmt.Println(infoStyle.Render("connected to " + *serverURL + ", strategy " + *strategy))
	fmt.Println(infoStyle.Render("type a question, /strategy <name>, /new, or exit"))

	sessionID := ""
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(promptStyle.Render("you> ") + " ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "exit" || line == "quit":
			return
		case line == "/new":
			sessionID = ""
			fmt.Println(infoStyle.Render("started a new conversation"))
			continue
		case strings.HasPrefix(line, "/strategy "):
			*strategy = strings.TrimSpace(strings.TrimPrefix(line, "/strategy "))
			fmt.Println(infoStyle.Render("strategy set to " + *strategy))
			continue
		}

		id, err := ask(*serverURL, *strategy, sessionID, line)
		if err != nil {
			fmt.Println(errorStyle.Render("error: " + err.Error()))
			continue
		}
		sessionID = id
	}
}

// ask sends one question and prints the streamed answer. It returns the
// session id the server replied with, so follow-up questions share context.
func ask(serverURL, strategy, sessionID, question string) (string, error) {
	body, err := json.Marshal(queryInput{
		Question:  question,
		RAGType:   strategy,
		SessionID: sessionID,
	})
	if err != nil {
		return sessionID, err
	}

	resp, err := http.Post(serverURL+"/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		return sessionID, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return sessionID, fmt.Errorf("%s", apiErr.Error)
		}
		return sessionID, fmt.Errorf("server returned %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var chunk responseChunk
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); err != nil {
			continue
		}
		if chunk.SessionID != "" {
			sessionID = chunk.SessionID
		}
		if chunk.Error != "" {
			fmt.Println()
			return sessionID, fmt.Errorf("%s", chunk.Error)
		}
		fmt.Print(answerStyle.Render(chunk.Token))
	}
	fmt.Print("\n\n")
	return sessionID, scanner.Err()
}
