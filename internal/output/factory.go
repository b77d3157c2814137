package output

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/nantokaworks/ql-label-printer/internal/apperr"
)

// Scheme returns the lower-cased scheme of a printer URI.
func Scheme(uri string) string {
	scheme, _, ok := strings.Cut(uri, "://")
	if !ok {
		return ""
	}
	return strings.ToLower(scheme)
}

// TypeOf returns the transport a URI selects without creating a backend.
func TypeOf(uri string) (PrinterType, error) {
	switch Scheme(uri) {
	case "tcp":
		return PrinterTypeNetwork, nil
	case "file":
		return PrinterTypeUSB, nil
	case "usb":
		return PrinterTypeLibUSB, nil
	}
	return "", apperr.Validation("unsupported printer URI %q: want tcp://, file:// or usb://", uri)
}

// NewBackend creates the backend selected by the URI scheme:
//
//	tcp://host[:port]              raw TCP (port 9100 by default)
//	file:///dev/usb/lp0            usblp character device
//	usb://0x04f9:0x209b[/serial]   libusb bulk transfer
func NewBackend(uri string, cfg Config) (Backend, error) {
	t, err := TypeOf(uri)
	if err != nil {
		return nil, err
	}
	switch t {
	case PrinterTypeNetwork:
		u, err := url.Parse(uri)
		if err != nil || u.Hostname() == "" {
			return nil, apperr.Validation("invalid network printer URI %q", uri)
		}
		port := u.Port()
		if port == "" {
			port = DefaultNetworkPort
		}
		return NewNetworkPrinter(uri, net.JoinHostPort(u.Hostname(), port), cfg), nil

	case PrinterTypeUSB:
		u, err := url.Parse(uri)
		if err != nil || u.Path == "" || u.Path == "/" {
			return nil, apperr.Validation("invalid USB device URI %q", uri)
		}
		return NewUSBPrinter(uri, u.Path, cfg), nil

	default:
		vid, pid, serial, err := parseUSBID(uri)
		if err != nil {
			return nil, err
		}
		return NewLibUSBPrinter(uri, vid, pid, serial, cfg), nil
	}
}

// parseUSBID splits usb://0xVVVV:0xPPPP[/serial].
func parseUSBID(uri string) (vid, pid uint16, serial string, err error) {
	rest := uri[len("usb://"):]
	rest, serial, _ = strings.Cut(rest, "/")
	v, p, ok := strings.Cut(rest, ":")
	if !ok {
		return 0, 0, "", apperr.Validation("invalid USB printer URI %q: want usb://0xVVVV:0xPPPP", uri)
	}
	vv, err1 := strconv.ParseUint(v, 0, 16)
	pp, err2 := strconv.ParseUint(p, 0, 16)
	if err1 != nil || err2 != nil {
		return 0, 0, "", apperr.Validation("invalid USB vendor/product id in %q", uri)
	}
	return uint16(vv), uint16(pp), serial, nil
}
