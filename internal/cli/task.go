package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const defaultPoll = time.Second

// NewTaskCmd создаёт группу команд для задач.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect the task catalogue and task results",
	}

	cmd.AddCommand(
		newTaskListCmd(clientFn, outputFn),
		newTaskStatusCmd(clientFn, outputFn),
	)

	return cmd
}

func newTaskListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var subsystem string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			defs, err := client.ListTasks(subsystem)
			if err != nil {
				return err
			}

			headers := []string{"NAME", "TIER", "QUEUE", "ARGS", "RETRIES"}
			rows := make([][]string, len(defs))
			for i, d := range defs {
				rows[i] = []string{
					d.Name,
					d.Tier,
					"<host>." + d.QueueSuffix,
					strings.Join(d.Args, ", "),
					strconv.Itoa(d.MaxRetries),
				}
			}

			out.Print(headers, rows, defs)
			return nil
		},
	}

	cmd.Flags().StringVar(&subsystem, "subsystem", "", "Filter by subsystem (storagedriver, vmdriver, netdriver, manager, ...)")

	return cmd
}

func newTaskStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var wait bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "status TASK_ID",
		Short: "Show task state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if wait {
				return waitAndPrint(client, out, args[0], timeout)
			}

			task, err := client.GetTask(args[0])
			if err != nil {
				return err
			}
			printTask(out, task)
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the task is finished")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Maximum time to wait")

	return cmd
}

// waitAndPrint ждёт завершения вызова, сообщая о смене стадий.
func waitAndPrint(client *Client, out *Output, id string, timeout time.Duration) error {
	task, err := client.WaitTask(id, defaultPoll, timeout, func(t *TaskResponse) {
		if t.Progress != "" {
			out.Success(fmt.Sprintf("%s: %s", t.State, t.Progress))
		} else {
			out.Success(t.State)
		}
	})
	if err != nil {
		return err
	}

	printTask(out, task)
	if task.State == "FAILURE" {
		return fmt.Errorf("task %s failed: %s", task.ID, task.Error)
	}
	return nil
}

func printTask(out *Output, t *TaskResponse) {
	headers := []string{"ID", "TASK", "STATE", "PROGRESS", "RETRIES", "ERROR"}
	rows := [][]string{{t.ID, t.Task, t.State, t.Progress, strconv.Itoa(t.Retries), t.Error}}
	out.Print(headers, rows, t)
}
