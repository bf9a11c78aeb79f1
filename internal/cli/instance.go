package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// NewInstanceCmd создаёт группу команд для развёртывания VM.
func NewInstanceCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instance",
		Short: "Deploy and destroy virtual machines",
	}

	cmd.AddCommand(
		newInstanceDeployCmd(clientFn, outputFn),
		newInstanceDestroyCmd(clientFn, outputFn),
		newInstanceShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newInstanceDeployCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string
	var wait bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "deploy INSTANCE_ID",
		Short: "Deploy a virtual machine from a JSON spec",
		Long: `Deploy a virtual machine. The VM description is read from --file (or stdin with "-")
and must contain name, memory, vcpus, disks and interfaces.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			spec, err := readSpec(file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			acc, err := client.Deploy(args[0], spec)
			if err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Deploy queued: task %s", acc.TaskID))

			if wait {
				return waitAndPrint(client, out, acc.TaskID, timeout)
			}
			printAccepted(out, acc)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to JSON spec (\"-\" for stdin)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the instance is running")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Maximum time to wait")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func newInstanceDestroyCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var wait bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "destroy INSTANCE_ID",
		Short: "Destroy a virtual machine and its disks and interfaces",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			acc, err := client.Destroy(args[0])
			if err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Destroy queued: task %s", acc.TaskID))

			if wait {
				return waitAndPrint(client, out, acc.TaskID, timeout)
			}
			printAccepted(out, acc)
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the instance is destroyed")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Maximum time to wait")

	return cmd
}

func newInstanceShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show INSTANCE_ID",
		Short: "Show deployment state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			inst, err := client.GetInstance(args[0])
			if err != nil {
				return err
			}

			headers := []string{"INSTANCE", "NAME", "STATE", "NODE", "MEMORY", "VCPUS", "TASK", "ERROR"}
			rows := [][]string{{
				inst.InstanceID,
				inst.Name,
				inst.State,
				inst.Node,
				strconv.Itoa(inst.Memory),
				strconv.Itoa(inst.VCPUs),
				inst.TaskID,
				inst.Error,
			}}

			out.Print(headers, rows, inst)
			return nil
		},
	}
}

func readSpec(file string, stdin io.Reader) (json.RawMessage, error) {
	var data []byte
	var err error
	if file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("read spec: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("spec %s is not valid JSON", file)
	}
	return json.RawMessage(data), nil
}

func printAccepted(out *Output, acc *TaskAccepted) {
	headers := []string{"INSTANCE", "TASK", "TASK_ID", "STATE"}
	rows := [][]string{{acc.InstanceID, acc.Task, acc.TaskID, acc.State}}
	out.Print(headers, rows, acc)
}
