package channel

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/jobwatch/jobwatch/internal/logging"
	"github.com/jobwatch/jobwatch/pkg/plugin"
	"github.com/jobwatch/jobwatch/pkg/rpc"
	"go.uber.org/zap"
)

// Plugin is one running channel plugin process.
type Plugin struct {
	cmd    *exec.Cmd
	rpc    *rpc.RPC
	mu     sync.Mutex
	logger *logging.Logger
}

// NewPlugin starts the plugin executable for pluginType from dir and connects
// to it.
func NewPlugin(dir, pluginType string, logger *logging.Logger) (*Plugin, error) {
	if err := ValidateType(pluginType); err != nil {
		return nil, err
	}

	p := &Plugin{logger: logger}

	p.mu.Lock()
	defer p.mu.Unlock()

	cmd := exec.Command(filepath.Join(dir, pluginType))

	writer, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("cannot create stdin pipe: %w", err)
	}

	reader, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("cannot create stdout pipe: %w", err)
	}

	errPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("cannot create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("cannot start plugin: %w", err)
	}

	go forwardLogs(errPipe, p.logger)

	p.cmd = cmd
	p.rpc = rpc.NewRPC(writer, reader, p.logger.SugaredLogger)

	return p, nil
}

// Pid returns the process ID of the plugin.
func (p *Plugin) Pid() int {
	return p.cmd.Process.Pid
}

// Stop asks the plugin to shut down, killing it after a grace period.
func (p *Plugin) Stop() {
	go terminate(p)
}

// GetInfo asks the plugin to describe itself.
func (p *Plugin) GetInfo() (*plugin.Info, error) {
	result, err := p.rpc.Call(plugin.MethodGetInfo, nil)
	if err != nil {
		return nil, err
	}

	info := &plugin.Info{}
	if err := json.Unmarshal(result, info); err != nil {
		return nil, err
	}

	return info, nil
}

// SetConfig pushes the channel config, a JSON object, to the plugin.
func (p *Plugin) SetConfig(config string) error {
	_, err := p.rpc.Call(plugin.MethodSetConfig, json.RawMessage(config))

	return err
}

// SendNotification delivers one notification through the plugin.
func (p *Plugin) SendNotification(req *plugin.NotificationRequest) error {
	params, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("cannot marshal notification request: %w", err)
	}

	_, err = p.rpc.Call(plugin.MethodSendNotification, params)

	return err
}

func terminate(p *Plugin) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger.Debug("Stopping channel plugin")

	// Closing stdin asks the plugin to exit. The reader goroutine observes
	// the process closing stdout and then rpc.Done unblocks below.
	_ = p.rpc.Close()
	timer := time.AfterFunc(5*time.Second, func() {
		p.logger.Debug("Killing unresponsive channel plugin")
		_ = p.cmd.Process.Kill()
	})

	<-p.rpc.Done()
	timer.Stop()
	_ = p.cmd.Wait()

	p.logger.Debug("Stopped channel plugin")
}

// forwardLogs copies the plugin's stderr lines into the daemon log.
func forwardLogs(errPipe io.Reader, logger *logging.Logger) {
	scanner := bufio.NewScanner(errPipe)
	for scanner.Scan() {
		logger.Info(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		logger.Errorw("Cannot scan stderr line of channel plugin", zap.Error(err))
	}
}

// pluginTypeValidateRegex defines the allowed characters of a channel plugin
// type, which doubles as its executable name.
var pluginTypeValidateRegex = regexp.MustCompile("^[a-zA-Z0-9]+$")

// ValidateType returns an error if non-allowed chars are detected, nil otherwise.
func ValidateType(t string) error {
	if !pluginTypeValidateRegex.MatchString(t) {
		return fmt.Errorf("channel type may only contain a-zA-Z0-9, %q given", t)
	}

	return nil
}
