package main

import (
	"encoding/json"
	"fmt"
	"time"

	"mcpreg/internal/domain"
)

func writeJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// renderError prints the boundary error payload and converts the error into
// a non-zero silent exit so cobra does not double-print it.
func renderError(err error, jsonOutput bool) error {
	if err == nil {
		return nil
	}
	payload := domain.PayloadFrom(err)
	if jsonOutput {
		if writeErr := writeJSON(map[string]any{"error": payload}); writeErr == nil {
			return exitSilent(1)
		}
	}
	return exitError{code: 1, message: fmt.Sprintf("%s: %s", payload.Code, err.Error())}
}

func printServer(server domain.Server, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(server)
	}
	fmt.Printf("%s\t%s\t%s\tv%d\n", server.ID, server.Name, describeStatus(server.Status), server.Version)
	return nil
}

func printServerDetail(server domain.Server, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(server)
	}
	fmt.Printf("id=%s\nname=%s\nstatus=%s\nversion=%d\ncommand=%s\n",
		server.ID, server.Name, describeStatus(server.Status), server.Version, server.Configuration.Command)
	if len(server.Configuration.Args) > 0 {
		fmt.Printf("args=%v\n", server.Configuration.Args)
	}
	if len(server.Tags) > 0 {
		fmt.Printf("tags=%v\n", server.Tags)
	}
	if server.Description != "" {
		fmt.Printf("description=%s\n", server.Description)
	}
	fmt.Printf("created=%s updated=%s\n",
		server.CreatedAt.Format(time.RFC3339), server.UpdatedAt.Format(time.RFC3339))
	return nil
}

func printServerList(result domain.ListResult, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(result)
	}
	fmt.Printf("total=%d page=%d\n", result.Total, result.Page)
	for _, server := range result.Servers {
		if err := printServer(server, false); err != nil {
			return err
		}
	}
	return nil
}

func printEvents(eventList []domain.ServerEvent, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(eventList)
	}
	for _, event := range eventList {
		fmt.Printf("%s\t%s\t%s\n", event.Timestamp.Format(time.RFC3339), event.Type, string(event.Payload))
	}
	return nil
}

func printBatch(result domain.BatchResult, jsonOutput bool) error {
	if jsonOutput {
		failed := make(map[string]domain.ErrorPayload, len(result.Failed))
		for id, err := range result.Failed {
			failed[id.String()] = domain.PayloadFrom(err)
		}
		return writeJSON(map[string]any{
			"succeeded": result.Succeeded,
			"failed":    failed,
		})
	}
	for _, id := range result.Succeeded {
		fmt.Printf("ok\t%s\n", id)
	}
	for id, err := range result.Failed {
		fmt.Printf("failed\t%s\t%s\n", id, err.Error())
	}
	if len(result.Failed) > 0 {
		return exitSilent(1)
	}
	return nil
}

func describeStatus(status domain.ServerStatus) string {
	switch status.Kind {
	case domain.StatusRunning:
		if status.Running != nil && status.Running.PID > 0 {
			return fmt.Sprintf("running(pid=%d)", status.Running.PID)
		}
		return "running"
	case domain.StatusStopped:
		if status.Stopped != nil && status.Stopped.Reason != "" {
			return fmt.Sprintf("stopped(%s)", status.Stopped.Reason)
		}
		return "stopped"
	case domain.StatusError:
		if status.Error != nil {
			return fmt.Sprintf("error(retries=%d)", status.Error.RetryCount)
		}
		return "error"
	case domain.StatusUpdating:
		if status.Updating != nil {
			return fmt.Sprintf("updating(%d%%)", status.Updating.Progress)
		}
		return "updating"
	default:
		return string(status.Kind)
	}
}
