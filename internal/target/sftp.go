// Copyright (c) 2026 Keymaster Team
// keyps - authorized_keys synchronization agent
// This source code is licensed under the MIT license found in the LICENSE file.

package target

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHOptions configures connections to remote targets.
type SSHOptions struct {
	// IdentityFile is a private key used before falling back to the agent.
	IdentityFile string
	// KnownHostsFile verifies host keys. Defaults to ~/.ssh/known_hosts.
	KnownHostsFile string
	// Timeout bounds the TCP connect and SSH handshake.
	Timeout time.Duration
}

// SFTPFile is an authorized_keys file on a remote host. Every Read and
// Write opens its own connection, so a dropped connection only costs one
// cycle.
type SFTPFile struct {
	user string
	addr string
	path string
	opts SSHOptions

	connect func(ctx context.Context) (*sftp.Client, func(), error)
}

// NewSFTPFile parses "sftp://user@host[:port]/path". A path starting with
// "/~/" is taken relative to the remote user's home directory.
func NewSFTPFile(spec string, opts SSHOptions) (*SFTPFile, error) {
	u, err := url.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse remote target %q: %w", spec, err)
	}
	if u.Scheme != "sftp" || u.Host == "" {
		return nil, fmt.Errorf("remote target %q: want sftp://user@host[:port]/path", spec)
	}
	if u.User == nil || u.User.Username() == "" {
		return nil, fmt.Errorf("remote target %q: missing user", spec)
	}
	p := u.Path
	if p == "" || p == "/" {
		return nil, fmt.Errorf("remote target %q: missing path", spec)
	}
	if strings.HasPrefix(p, "/~/") {
		p = strings.TrimPrefix(p, "/~/")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	f := &SFTPFile{
		user: u.User.Username(),
		addr: CanonicalizeHostPort(u.Host),
		path: p,
		opts: opts,
	}
	f.connect = f.dial
	return f, nil
}

// CanonicalizeHostPort adds the default SSH port when host has none.
func CanonicalizeHostPort(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(strings.Trim(host, "[]"), "22")
}

func (f *SFTPFile) String() string {
	p := f.path
	if !strings.HasPrefix(p, "/") {
		p = "/~/" + p
	}
	return fmt.Sprintf("sftp://%s@%s%s", f.user, f.addr, p)
}

// clientConfig builds the ssh configuration for f. The returned release
// function closes the agent connection, if one was opened, and must be
// called once the ssh connection using the config is done.
func (f *SFTPFile) clientConfig() (*ssh.ClientConfig, func(), error) {
	khPath := f.opts.KnownHostsFile
	if khPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil, fmt.Errorf("locate known_hosts: %w", err)
		}
		khPath = filepath.Join(home, ".ssh", "known_hosts")
	}
	hostKeyCallback, err := knownhosts.New(khPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load known_hosts %s: %w", khPath, err)
	}

	var auth []ssh.AuthMethod
	if f.opts.IdentityFile != "" {
		pem, err := os.ReadFile(f.opts.IdentityFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read identity %s: %w", f.opts.IdentityFile, err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	release := func() {}
	if agentClient, agentConn := getSSHAgent(); agentClient != nil {
		auth = append(auth, ssh.PublicKeysCallback(agentClient.Signers))
		if agentConn != nil {
			release = func() { agentConn.Close() }
		}
	}
	if len(auth) == 0 {
		return nil, nil, errors.New("no authentication method available (no identity file given and no ssh agent found)")
	}

	return &ssh.ClientConfig{
		User:            f.user,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         f.opts.Timeout,
	}, release, nil
}

func (f *SFTPFile) dial(ctx context.Context) (*sftp.Client, func(), error) {
	config, release, err := f.clientConfig()
	if err != nil {
		return nil, nil, err
	}

	d := net.Dialer{Timeout: f.opts.Timeout}
	conn, err := d.DialContext(ctx, "tcp", f.addr)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("connect %s: %w", f.addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, f.addr, config)
	if err != nil {
		conn.Close()
		release()
		return nil, nil, fmt.Errorf("ssh handshake with %s: %w", f.addr, err)
	}
	client := ssh.NewClient(c, chans, reqs)

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		release()
		return nil, nil, fmt.Errorf("failed to create sftp client: %w", err)
	}
	return sftpClient, func() {
		sftpClient.Close()
		client.Close()
		release()
	}, nil
}

// Read returns the content of the remote file.
func (f *SFTPFile) Read(ctx context.Context) (string, error) {
	client, closeFn, err := f.connect(ctx)
	if err != nil {
		return "", err
	}
	defer closeFn()

	rf, err := client.Open(f.path)
	if err != nil {
		return "", fmt.Errorf("failed to open remote file %s: %w", f.path, err)
	}
	defer rf.Close()

	content, err := io.ReadAll(rf)
	if err != nil {
		return "", fmt.Errorf("failed to read from remote file %s: %w", f.path, err)
	}
	return string(content), nil
}

// Write uploads content next to the remote file and renames it into
// place.
func (f *SFTPFile) Write(ctx context.Context, content string) error {
	client, closeFn, err := f.connect(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	mode := os.FileMode(0o600)
	if fi, err := client.Stat(f.path); err == nil {
		mode = fi.Mode().Perm()
	}

	dir, base := path.Split(f.path)
	tmpPath := path.Join(dir, fmt.Sprintf(".%s.keyps.%d", base, time.Now().UnixNano()))
	wf, err := client.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary file on remote: %w", err)
	}
	if _, err := wf.Write([]byte(content)); err != nil {
		wf.Close()
		_ = client.Remove(tmpPath)
		return fmt.Errorf("failed to write to temporary file on remote: %w", err)
	}
	if err := wf.Close(); err != nil {
		_ = client.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary file on remote: %w", err)
	}

	if err := client.Chmod(tmpPath, mode); err != nil {
		_ = client.Remove(tmpPath)
		return fmt.Errorf("failed to chmod temporary file: %w", err)
	}

	if err := client.PosixRename(tmpPath, f.path); err != nil {
		_ = client.Remove(tmpPath)
		return fmt.Errorf("failed to atomically rename %s: %w", f.path, err)
	}
	return nil
}
