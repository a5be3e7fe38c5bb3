package config

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
)

func splitPort(addr string) (string, string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", "", errors.Wrapf(err, "invalid address %q", addr)
	}
	return host, port, nil
}

// HostPort splits addr into host and numeric port.
func HostPort(addr string) (string, int, error) {
	host, port, err := splitPort(addr)
	if err != nil {
		return "", 0, err
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return "", 0, errors.Wrapf(err, "invalid port in %q", addr)
	}
	return host, p, nil
}
