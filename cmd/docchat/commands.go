package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question over the ingested documents",
	Long: `Ask a question answered from the ingested documents.

Examples:
  docchat ask "what is the refund policy"
  docchat ask --session 6f1c... "and for international orders?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		sessionID, _ := cmd.Flags().GetString("session")
		req := map[string]any{
			"message": strings.Join(args, " "),
		}
		if sessionID != "" {
			req["sessionId"] = sessionID
		}

		resp, err := client.post(cmd.Context(), "/api/chat", req)
		if err != nil {
			return err
		}

		var result struct {
			Response  string `json:"response"`
			SessionID string `json:"sessionId"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Response)
		printStatus("Session", "%s", result.SessionID)
		return nil
	},
}

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload and index a .docx or .pdf document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.postFile(cmd.Context(), "/api/rag/upload", args[0])
		if err != nil {
			return err
		}

		var result struct {
			OK       bool `json:"ok"`
			Document struct {
				ID           string `json:"id"`
				OriginalName string `json:"originalName"`
				Chunks       int    `json:"chunks"`
			} `json:"document"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Indexed %s (%d chunks, id %s)",
			result.Document.OriginalName, result.Document.Chunks, result.Document.ID)
		return nil
	},
}

// --- docs ---

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage ingested documents",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/rag/documents")
		if err != nil {
			return err
		}

		var result struct {
			Documents []struct {
				ID           string `json:"id"`
				OriginalName string `json:"originalName"`
				Filesize     int64  `json:"filesize"`
				Chunks       int    `json:"chunks"`
				UploadedAt   string `json:"uploadedAt"`
			} `json:"documents"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Documents) == 0 {
			fmt.Println("no documents ingested")
			return nil
		}
		for _, d := range result.Documents {
			fmt.Printf("%s  %-30s  %6d bytes  %3d chunks  %s\n",
				d.ID, d.OriginalName, d.Filesize, d.Chunks, d.UploadedAt)
		}
		return nil
	},
}

var docsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/api/rag/documents/"+args[0])
		if err != nil {
			return err
		}

		var result struct {
			OK       bool   `json:"ok"`
			Filename string `json:"filename"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted %s", result.Filename)
		return nil
	},
}

// --- reindex ---

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the index from the most recent source file",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/rag/reindex-latest", nil)
		if err != nil {
			return err
		}

		var result struct {
			OK   bool   `json:"ok"`
			File string `json:"file"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Reindexed %s", result.File)
		return nil
	},
}

func init() {
	askCmd.Flags().String("session", "", "continue an existing chat session")
	docsCmd.AddCommand(docsListCmd)
	docsCmd.AddCommand(docsDeleteCmd)
}
