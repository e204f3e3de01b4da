package camera

import (
	"bytes"
	"net"
	"time"

	"gocv.io/x/gocv"
)

var (
	jpegHeader = []byte{0xFF, 0xD8}
	jpegFooter = []byte{0xFF, 0xD9}
)

// udpReadTimeout makes Read return periodically so the acquisition loop can
// observe shutdown.
const udpReadTimeout = time.Second

// UDPCapture reconstructs JPEG frames from UDP datagrams sent by ESP32-style
// cameras: a frame starts with a datagram beginning with SOI and ends with one
// finishing with EOI.
type UDPCapture struct {
	conn    *net.UDPConn
	buffer  []byte
	frames  map[string]*bytes.Buffer
	timeout time.Duration
}

// ListenUDP binds the UDP listener, e.g. addr ":9000".
func ListenUDP(addr string) (*UDPCapture, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &UDPCapture{
		conn:    conn,
		buffer:  make([]byte, 65535),
		frames:  make(map[string]*bytes.Buffer),
		timeout: udpReadTimeout,
	}, nil
}

// Addr returns the bound address.
func (c *UDPCapture) Addr() net.Addr {
	return c.conn.LocalAddr()
}

// Read blocks until a complete JPEG is received and decoded into m. It returns
// false on read timeout, socket error or an undecodable frame.
func (c *UDPCapture) Read(m *gocv.Mat) bool {
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return false
		}
		n, remoteAddr, err := c.conn.ReadFromUDP(c.buffer)
		if err != nil {
			return false
		}

		sender := remoteAddr.IP.String()
		data := c.buffer[:n]
		imgBuffer, ok := c.frames[sender]
		if !ok {
			imgBuffer = new(bytes.Buffer)
			c.frames[sender] = imgBuffer
		}

		if bytes.HasPrefix(data, jpegHeader) {
			imgBuffer.Reset()
		}
		imgBuffer.Write(data)

		if !bytes.HasSuffix(data, jpegFooter) {
			continue
		}

		decoded, err := gocv.IMDecode(imgBuffer.Bytes(), gocv.IMReadColor)
		imgBuffer.Reset()
		if err != nil {
			return false
		}
		if decoded.Empty() {
			decoded.Close()
			return false
		}
		err = decoded.CopyTo(m)
		decoded.Close()
		return err == nil
	}
}

// Close releases the socket.
func (c *UDPCapture) Close() error {
	return c.conn.Close()
}
