package cli

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/todochain/internal/core/domain"
)

var todosCmd = &cobra.Command{
	Use:   "todos <network> [id]",
	Short: "List the wallet's to-do records, or show one",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runTodos,
}

var todoCmd = &cobra.Command{
	Use:   "todo",
	Short: "Create, update or delete to-do records",
}

var todoCreateCmd = &cobra.Command{
	Use:   "create <network> <title>",
	Short: "Create a record and wait for the receipt",
	Args:  cobra.ExactArgs(2),
	RunE:  runTodoCreate,
}

var todoUpdateCmd = &cobra.Command{
	Use:   "update <network> <id>",
	Short: "Update the given fields of a record",
	Args:  cobra.ExactArgs(2),
	RunE:  runTodoUpdate,
}

var todoDeleteCmd = &cobra.Command{
	Use:   "delete <network> <id>",
	Short: "Delete a record",
	Args:  cobra.ExactArgs(2),
	RunE:  runTodoDelete,
}

var (
	todoTitle       string
	todoDescription string
	todoPriority    string
	todoCompleted   bool
)

func init() {
	addWalletFlag(todosCmd)
	rootCmd.AddCommand(todosCmd)

	for _, c := range []*cobra.Command{todoCreateCmd, todoUpdateCmd, todoDeleteCmd} {
		addWalletFlag(c)
		todoCmd.AddCommand(c)
	}
	todoCreateCmd.Flags().StringVar(&todoDescription, "description", "", "record description")
	todoCreateCmd.Flags().StringVar(&todoPriority, "priority", "medium", "low, medium or high")

	todoUpdateCmd.Flags().StringVar(&todoTitle, "title", "", "new title")
	todoUpdateCmd.Flags().StringVar(&todoDescription, "description", "", "new description")
	todoUpdateCmd.Flags().StringVar(&todoPriority, "priority", "", "low, medium or high")
	todoUpdateCmd.Flags().BoolVar(&todoCompleted, "completed", false, "mark as completed")
	rootCmd.AddCommand(todoCmd)
}

func parsePriority(s string) (domain.Priority, error) {
	switch strings.ToLower(s) {
	case "low", "0":
		return domain.PriorityLow, nil
	case "medium", "1":
		return domain.PriorityMedium, nil
	case "high", "2":
		return domain.PriorityHigh, nil
	}
	return 0, fmt.Errorf("invalid priority %q", s)
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return id, nil
}

func runTodos(cmd *cobra.Command, args []string) error {
	svc, _, err := connect(cmd, args[0])
	if err != nil {
		return err
	}

	if len(args) == 2 {
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		todo, err := svc.GetTodoByID(cmd.Context(), id)
		if err != nil {
			return err
		}
		if todo == nil {
			return fmt.Errorf("todo %d not found", id)
		}
		return printJSON(cmd, todo)
	}

	todos, err := svc.GetTodos(cmd.Context())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tDONE\tPRIORITY\tTITLE\tUPDATED")
	for _, t := range todos {
		_, _ = fmt.Fprintf(w, "%d\t%t\t%s\t%s\t%s\n",
			t.ID, t.Completed, t.Priority, t.Title, t.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runTodoCreate(cmd *cobra.Command, args []string) error {
	priority, err := parsePriority(todoPriority)
	if err != nil {
		return err
	}
	svc, _, err := connect(cmd, args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	receipt, err := svc.CreateTodo(ctx, domain.CreateTodoInput{
		Title:       args[1],
		Description: todoDescription,
		Priority:    priority,
	})
	if err != nil {
		return err
	}
	return printReceipt(cmd, svc.GetTransactionExplorerURL(receipt.Hash), receipt)
}

func runTodoUpdate(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[1])
	if err != nil {
		return err
	}

	var in domain.UpdateTodoInput
	flags := cmd.Flags()
	if flags.Changed("title") {
		in.Title = &todoTitle
	}
	if flags.Changed("description") {
		in.Description = &todoDescription
	}
	if flags.Changed("completed") {
		in.Completed = &todoCompleted
	}
	if flags.Changed("priority") {
		p, err := parsePriority(todoPriority)
		if err != nil {
			return err
		}
		in.Priority = &p
	}
	if in == (domain.UpdateTodoInput{}) {
		return fmt.Errorf("nothing to update")
	}

	svc, _, err := connect(cmd, args[0])
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	receipt, err := svc.UpdateTodo(ctx, id, in)
	if err != nil {
		return err
	}
	return printReceipt(cmd, svc.GetTransactionExplorerURL(receipt.Hash), receipt)
}

func runTodoDelete(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[1])
	if err != nil {
		return err
	}
	svc, _, err := connect(cmd, args[0])
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	receipt, err := svc.DeleteTodo(ctx, id)
	if err != nil {
		return err
	}
	return printReceipt(cmd, svc.GetTransactionExplorerURL(receipt.Hash), receipt)
}
