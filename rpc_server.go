package h5viewer

import (
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"

	"github.com/spf13/viper"
)

// ViewerControl is the JSON-RPC service that gives programs the same view
// of data files as the HTTP API.
type ViewerControl struct {
	browser *Browser
}

// NewViewerControl makes a ViewerControl answering from b.
func NewViewerControl(b *Browser) *ViewerControl {
	return &ViewerControl{browser: b}
}

// OpenFile returns the structure tree of the named file.
func (v *ViewerControl) OpenFile(filename *string, reply *Node) error {
	root, err := v.browser.Structure(*filename, NewRequestID())
	if err != nil {
		return err
	}
	UpdateLogger.Printf("OpenFile %s: %s\n", *filename, root.Name)
	*reply = *root
	return nil
}

// GetDataset returns the values of the dataset ref.Path in ref.File.
func (v *ViewerControl) GetDataset(ref *ObjectRef, reply *DatasetContents) error {
	contents, err := v.browser.Dataset(ref.File, ref.Path, NewRequestID())
	if err != nil {
		return err
	}
	*reply = *contents
	return nil
}

// GetAttributes returns the attributes of the object ref.Path in ref.File.
func (v *ViewerControl) GetAttributes(ref *ObjectRef, reply *Attributes) error {
	attrs, err := v.browser.Attributes(ref.File, ref.Path)
	if err != nil {
		return err
	}
	*reply = attrs
	return nil
}

// GetSummary returns statistics of the numeric dataset ref.Path in ref.File.
func (v *ViewerControl) GetSummary(ref *ObjectRef, reply *DatasetSummary) error {
	summary, err := v.browser.Summary(ref.File, ref.Path)
	if err != nil {
		return err
	}
	*reply = *summary
	return nil
}

// ListDir lists a directory for the file picker ("" is the data root).
func (v *ViewerControl) ListDir(dir *string, reply *DirListing) error {
	listing, err := v.browser.ListDir(*dir)
	if err != nil {
		return err
	}
	*reply = *listing
	return nil
}

// SendAllStatus causes a broadcast to clients containing all broadcastable status info.
func (v *ViewerControl) SendAllStatus(dummy *string, reply *bool) error {
	v.browser.BroadcastStatus()
	*reply = true
	return nil
}

// Status returns the current status without broadcasting it.
func (v *ViewerControl) Status(dummy *string, reply *BrowserStatus) error {
	*reply = v.browser.Status()
	return nil
}

// ConfigFromViper reads the "viewer" section of the configuration.
func ConfigFromViper() (BrowserConfig, error) {
	var config BrowserConfig
	if err := viper.UnmarshalKey("viewer", &config); err != nil {
		return config, fmt.Errorf("reading viewer config: %w", err)
	}
	if config.DataRoot == "" {
		config.DataRoot = "."
	}
	return config, nil
}

// RunRPCServer sets up and runs a permanent JSON-RPC server on portrpc,
// until abort is closed.
func RunRPCServer(b *Browser, portrpc int, abort <-chan struct{}) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", portrpc))
	if err != nil {
		return fmt.Errorf("listen error: %w", err)
	}
	return ServeRPC(b, listener, abort)
}

// ServeRPC accepts JSON-RPC connections on listener until abort is closed.
func ServeRPC(b *Browser, listener net.Listener, abort <-chan struct{}) error {
	server := rpc.NewServer()
	if err := server.Register(NewViewerControl(b)); err != nil {
		return err
	}
	go func() {
		<-abort
		listener.Close()
	}()

	UpdateLogger.Printf("JSON-RPC listening on %s\n", listener.Addr())
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-abort:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept error: %w", err)
		}
		UpdateLogger.Printf("new connection established from %s\n", conn.RemoteAddr())
		go server.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}
