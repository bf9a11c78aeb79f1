package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// InstanceResponse — развёртывание из API.
type InstanceResponse struct {
	InstanceID string         `json:"instance_id"`
	Name       string         `json:"name"`
	State      string         `json:"state"`
	Node       string         `json:"node,omitempty"`
	Memory     int            `json:"memory"`
	VCPUs      int            `json:"vcpus"`
	Progress   map[string]any `json:"progress,omitempty"`
	TaskID     string         `json:"task_id,omitempty"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  string         `json:"created_at"`
	UpdatedAt  string         `json:"updated_at"`
	FinishedAt string         `json:"finished_at,omitempty"`
}

// TaskAccepted — ответ на deploy/destroy.
type TaskAccepted struct {
	InstanceID string `json:"instance_id"`
	TaskID     string `json:"task_id"`
	Task       string `json:"task"`
	State      string `json:"state"`
}

// TaskResponse — состояние вызова задачи из API.
type TaskResponse struct {
	ID        string `json:"id"`
	Task      string `json:"task,omitempty"`
	State     string `json:"state"`
	Progress  string `json:"progress,omitempty"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
	Retries   int    `json:"retries"`
	Ready     bool   `json:"ready"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// TaskDefResponse — задача каталога из API.
type TaskDefResponse struct {
	Name        string   `json:"name"`
	Subsystem   string   `json:"subsystem"`
	Tier        string   `json:"tier"`
	Args        []string `json:"args,omitempty"`
	MinArgs     int      `json:"min_args"`
	MaxRetries  int      `json:"max_retries"`
	QueueSuffix string   `json:"queue_suffix"`
}

// QueueResponse — очередь из API.
type QueueResponse struct {
	Name      string `json:"name"`
	Tier      string `json:"tier"`
	Host      string `json:"host"`
	Subsystem string `json:"subsystem"`
}

// TierResponse — брокер из API.
type TierResponse struct {
	Tier        string          `json:"tier"`
	Exchange    string          `json:"exchange"`
	DeadLetters string          `json:"dead_letters"`
	Queues      []QueueResponse `json:"queues"`
}

// TopologyResponse — топология из API.
type TopologyResponse struct {
	Tiers []TierResponse `json:"tiers"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для CIRCLE API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Instances ---

// Deploy отправляет запрос на развёртывание. spec — JSON описания VM.
func (c *Client) Deploy(instanceID string, spec json.RawMessage) (*TaskAccepted, error) {
	var acc TaskAccepted
	err := c.post("/api/v1/instances/"+instanceID+"/deploy", spec, &acc)
	return &acc, err
}

// Destroy отправляет запрос на уничтожение VM.
func (c *Client) Destroy(instanceID string) (*TaskAccepted, error) {
	var acc TaskAccepted
	err := c.post("/api/v1/instances/"+instanceID+"/destroy", nil, &acc)
	return &acc, err
}

// GetInstance возвращает состояние развёртывания.
func (c *Client) GetInstance(instanceID string) (*InstanceResponse, error) {
	var inst InstanceResponse
	err := c.get("/api/v1/instances/"+instanceID, &inst)
	return &inst, err
}

// --- Tasks ---

// ListTasks возвращает каталог задач. Если subsystem не пустой — фильтрует.
func (c *Client) ListTasks(subsystem string) ([]TaskDefResponse, error) {
	params := url.Values{}
	if subsystem != "" {
		params.Set("subsystem", subsystem)
	}

	var defs []TaskDefResponse
	err := c.list("/api/v1/tasks", params, &defs)
	return defs, err
}

// GetTask возвращает состояние вызова задачи.
func (c *Client) GetTask(id string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.get("/api/v1/tasks/"+id, &task)
	return &task, err
}

// WaitTask опрашивает состояние вызова, пока он не завершится.
// onChange вызывается при каждой смене состояния или прогресса.
func (c *Client) WaitTask(id string, poll, timeout time.Duration, onChange func(*TaskResponse)) (*TaskResponse, error) {
	deadline := time.Now().Add(timeout)
	last := ""

	for {
		task, err := c.GetTask(id)
		if err != nil {
			return nil, err
		}
		if cur := task.State + "/" + task.Progress; cur != last {
			last = cur
			if onChange != nil {
				onChange(task)
			}
		}
		if task.Ready {
			return task, nil
		}
		if time.Now().After(deadline) {
			return task, fmt.Errorf("timeout waiting for task %s (state %s)", id, task.State)
		}
		time.Sleep(poll)
	}
}

// --- Topology ---

// GetTopology возвращает exchanges и очереди брокеров.
func (c *Client) GetTopology() (*TopologyResponse, error) {
	var topo TopologyResponse
	err := c.get("/api/v1/topology", &topo)
	return &topo, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
