package ingest

import (
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"
)

// DropFolder fetches pumper workbooks from the FTP share the field crews
// upload to. Each call dials a fresh connection; the share drops idle
// sessions aggressively.
type DropFolder struct {
	addr string
	user string
	pass string
	dir  string
}

func NewDropFolder(addr, user, pass, dir string) *DropFolder {
	if user == "" {
		user = "anonymous"
		pass = "anonymous"
	}
	return &DropFolder{addr: addr, user: user, pass: pass, dir: dir}
}

func workbookName(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".xlsx", ".xls", ".xlsm":
		return true
	}
	return false
}

// List returns the workbook file names currently in the drop folder.
func (d *DropFolder) List() ([]string, error) {
	conn, err := d.dial()
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	entries, err := conn.List(d.dir)
	if err != nil {
		return nil, fmt.Errorf("ftp list %s: %w", d.dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile {
			continue
		}
		if workbookName(e.Name) {
			names = append(names, e.Name)
		}
	}
	return names, nil
}

// Fetch downloads one workbook, retrying transient failures with
// exponential backoff.
func (d *DropFolder) Fetch(name string) ([]byte, error) {
	var body []byte
	operation := func() error {
		conn, err := d.dial()
		if err != nil {
			return err
		}
		defer conn.Quit()

		resp, err := conn.Retr(path.Join(d.dir, name))
		if err != nil {
			return fmt.Errorf("ftp retr %s: %w", name, err)
		}
		defer resp.Close()

		body, err = io.ReadAll(resp)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read %s: %w", name, err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, err
	}
	return body, nil
}

func (d *DropFolder) dial() (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(d.addr, ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return nil, fmt.Errorf("ftp dial %s: %w", d.addr, err)
	}
	if err := conn.Login(d.user, d.pass); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("ftp login: %w", err)
	}
	return conn, nil
}
