package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the tutor a question",
	Long: `Ask the tutor a question.

Examples:
  tutord ask --student alice --subject biology "what is photosynthesis?"
  tutord ask --student alice --subject biology "quiz me on photosynthesis"
  tutord ask --student alice --subject biology B`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		student, _ := cmd.Flags().GetString("student")
		subject, _ := cmd.Flags().GetString("subject")
		class, _ := cmd.Flags().GetString("class")
		agent, _ := cmd.Flags().GetString("agent")
		if student == "" || subject == "" {
			return fmt.Errorf("--student and --subject are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"student_id": student,
			"subject":    subject,
			"class":      class,
			"agent_id":   agent,
			"query":      strings.Join(args, " "),
		}
		resp, err := client.post(cmd.Context(), "/ask", req)
		if err != nil {
			return err
		}

		var result struct {
			TurnID    string `json:"turn_id"`
			Intent    string `json:"intent"`
			Response  string `json:"response"`
			Confusion string `json:"confusion_type"`
			Quiz      *struct {
				QuestionNumber int      `json:"question_number"`
				TotalQuestions int      `json:"total_questions"`
				Question       string   `json:"question"`
				Options        []string `json:"options"`
			} `json:"quiz"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Response)
		if result.Quiz != nil {
			q := result.Quiz
			fmt.Printf("\n%s (%d/%d)\n", colorize(colorBold, q.Question), q.QuestionNumber, q.TotalQuestions)
			for i, opt := range q.Options {
				fmt.Printf("  %c) %s\n", 'A'+i, opt)
			}
		}
		if result.TurnID != "" {
			printStatus("Turn", "%s", result.TurnID)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().String("student", "", "student identifier")
	askCmd.Flags().String("subject", "", "subject, e.g. biology")
	askCmd.Flags().String("class", "", "class or grade level")
	askCmd.Flags().String("agent", "", "agent identifier (defaults to subject)")
}

// --- feedback ---

var feedbackCmd = &cobra.Command{
	Use:   "feedback <turn-id> <like|dislike>",
	Short: "Rate a tutoring turn",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		student, _ := cmd.Flags().GetString("student")
		subject, _ := cmd.Flags().GetString("subject")
		agent, _ := cmd.Flags().GetString("agent")
		if student == "" || subject == "" {
			return fmt.Errorf("--student and --subject are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"student_id": student,
			"subject":    subject,
			"agent_id":   agent,
			"turn_id":    args[0],
			"feedback":   args[1],
		}
		resp, err := client.post(cmd.Context(), "/feedback", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Recorded %s on turn %s", args[1], args[0])
		return nil
	},
}

func init() {
	feedbackCmd.Flags().String("student", "", "student identifier")
	feedbackCmd.Flags().String("subject", "", "subject")
	feedbackCmd.Flags().String("agent", "", "agent identifier (defaults to subject)")
}

// --- train ---

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run one offline preference-training pass over stored feedback",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/train", nil)
		if err != nil {
			return err
		}

		var result map[string]int
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Applied %d weight updates", result["updates"])
		return nil
	},
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect student profiles",
}

var profileShowCmd = &cobra.Command{
	Use:   "show <student> <subject>",
	Short: "Show a student's subject profile as JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/students/%s/subjects/%s/profile", args[0], args[1])
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var pref any
		if err := decodeJSON(resp, &pref); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(pref)
	},
}

func init() {
	profileCmd.AddCommand(profileShowCmd)
}

// --- performance ---

type overviewRow struct {
	AgentID            string  `json:"agent_id"`
	OverallScore       float64 `json:"overall_score"`
	PerformanceLevel   string  `json:"performance_level"`
	TotalConversations int     `json:"total_conversations"`
	HealthStatus       string  `json:"health_status"`
}

var performanceCmd = &cobra.Command{
	Use:   "performance",
	Short: "Inspect agent performance",
}

var performanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all agents ranked by overall score",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/performance")
		if err != nil {
			return err
		}

		var rows []overviewRow
		if err := decodeJSON(resp, &rows); err != nil {
			return err
		}
		printOverview(rows)
		return nil
	},
}

var performanceAttentionCmd = &cobra.Command{
	Use:   "attention",
	Short: "List agents scoring below a threshold",
	RunE: func(cmd *cobra.Command, args []string) error {
		threshold, _ := cmd.Flags().GetFloat64("threshold")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/performance/attention?threshold=%g", threshold)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var rows []overviewRow
		if err := decodeJSON(resp, &rows); err != nil {
			return err
		}
		if len(rows) == 0 {
			printSuccess("No agents below %.0f", threshold)
			return nil
		}
		printOverview(rows)
		return nil
	},
}

var performanceShowCmd = &cobra.Command{
	Use:   "show <agent>",
	Short: "Show one agent's full performance report as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/performance/"+args[0])
		if err != nil {
			return err
		}

		var report any
		if err := decodeJSON(resp, &report); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func printOverview(rows []overviewRow) {
	if len(rows) == 0 {
		fmt.Println("No agents yet.")
		return
	}
	for _, r := range rows {
		fmt.Printf("%s  %6.1f  %-9s  %-8s  %d conversations\n",
			colorize(colorBold, fmt.Sprintf("%-16s", r.AgentID)),
			r.OverallScore, r.PerformanceLevel, r.HealthStatus, r.TotalConversations)
	}
}

func init() {
	performanceAttentionCmd.Flags().Float64("threshold", 60, "overall score threshold")
	performanceCmd.AddCommand(performanceListCmd)
	performanceCmd.AddCommand(performanceAttentionCmd)
	performanceCmd.AddCommand(performanceShowCmd)
}
