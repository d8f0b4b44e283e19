package service

// ConsoleService feeds the websocket console: a backlog replay followed
// by the live line stream, and command injection back into stdin.
type ConsoleService struct {
	servers *ServerService
}

func NewConsoleService(servers *ServerService) *ConsoleService {
	return &ConsoleService{servers: servers}
}

const consoleBacklogLines = 100

// StreamLogs returns a channel that first replays the recent buffer and
// then follows live output. The cancel func detaches the subscriber and
// closes the channel.
func (c *ConsoleService) StreamLogs(id string) (<-chan string, func(), error) {
	backlog, err := c.servers.Logs(id, consoleBacklogLines)
	if err != nil {
		return nil, nil, err
	}

	live, cancel, err := c.servers.Subscribe(id)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan string, 256)
	go func() {
		defer close(out)
		for _, line := range backlog {
			out <- line
		}
		for line := range live {
			out <- line
		}
	}()
	return out, cancel, nil
}

// ExecuteCommand injects one console command into a running server.
func (c *ConsoleService) ExecuteCommand(id, command string) error {
	return c.servers.SendCommand(id, command)
}
