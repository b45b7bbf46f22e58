package messaging_test

import (
	"bufio"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-bananabit/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type smtpCapture struct {
	from string
	to   string
	data string
}

// fakeSMTP accepts one session and reports what it received.
func fakeSMTP(t *testing.T) (string, int, <-chan smtpCapture) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	out := make(chan smtpCapture, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		reply := func(line string) { io.WriteString(conn, line+"\r\n") }

		var got smtpCapture
		reply("220 fake ESMTP")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.TrimSpace(line)
			upper := strings.ToUpper(cmd)
			switch {
			case strings.HasPrefix(upper, "EHLO"), strings.HasPrefix(upper, "HELO"):
				reply("250 fake")
			case strings.HasPrefix(upper, "MAIL FROM:"):
				got.from = strings.Trim(cmd[len("MAIL FROM:"):], "<> ")
				reply("250 OK")
			case strings.HasPrefix(upper, "RCPT TO:"):
				got.to = strings.Trim(cmd[len("RCPT TO:"):], "<> ")
				reply("250 OK")
			case upper == "DATA":
				reply("354 end with .")
				var data strings.Builder
				for {
					l, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if l == ".\r\n" {
						break
					}
					data.WriteString(l)
				}
				got.data = data.String()
				reply("250 queued")
			case upper == "QUIT":
				reply("221 bye")
				out <- got
				return
			default:
				reply("250 OK")
			}
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port, out
}

func TestSMTPSender_Send(t *testing.T) {
	host, port, received := fakeSMTP(t)
	sender := messaging.NewSMTPSender(messaging.SMTPConfig{Host: host, Port: port})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := sender.Send(ctx, messaging.Message{
		FromName: "BananaBit CMS",
		From:     "noreply@bananabit.dev",
		To:       "jane@example.com",
		Subject:  "Verify Your Email - BananaBit CMS",
		Text:     "plain body\n",
		HTML:     "<p>html body</p>",
	})
	require.NoError(t, err)

	var got smtpCapture
	select {
	case got = <-received:
	case <-ctx.Done():
		t.Fatal("smtp server did not receive the message")
	}

	assert.Equal(t, "noreply@bananabit.dev", got.from)
	assert.Equal(t, "jane@example.com", got.to)

	msg, err := mail.ReadMessage(strings.NewReader(got.data))
	require.NoError(t, err)
	assert.Equal(t, "Verify Your Email - BananaBit CMS", msg.Header.Get("Subject"))
	assert.Contains(t, msg.Header.Get("From"), "noreply@bananabit.dev")
	assert.NotEmpty(t, msg.Header.Get("Message-ID"))

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/alternative", mediaType)

	mr := multipart.NewReader(msg.Body, params["boundary"])
	var types, bodies []string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(part)
		require.NoError(t, err)
		types = append(types, part.Header.Get("Content-Type"))
		bodies = append(bodies, string(body))
	}

	require.Len(t, types, 2)
	assert.Contains(t, types[0], "text/plain")
	assert.Contains(t, types[1], "text/html")
	assert.Contains(t, bodies[0], "plain body")
	assert.Contains(t, bodies[1], "<p>html body</p>")
}

func TestSMTPSender_WriteMessage(t *testing.T) {
	sender := messaging.NewSMTPSender(messaging.SMTPConfig{})

	var buf strings.Builder
	err := sender.WriteMessage(&buf, messaging.Message{
		From:    "noreply@bananabit.dev",
		To:      "jane@example.com",
		Subject: "Welcome",
		HTML:    "<p>only html</p>",
	})
	require.NoError(t, err)

	msg, err := mail.ReadMessage(strings.NewReader(buf.String()))
	require.NoError(t, err)
	assert.Equal(t, "Welcome", msg.Header.Get("Subject"))
	assert.NotEmpty(t, msg.Header.Get("Date"))

	mediaType, _, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "text/html", mediaType)
}

func TestSMTPSender_RejectsBadAddresses(t *testing.T) {
	sender := messaging.NewSMTPSender(messaging.SMTPConfig{})
	assert.Equal(t, "localhost:1025", sender.Addr())

	err := sender.Send(context.Background(), messaging.Message{From: "not an address", To: "jane@example.com"})
	assert.Error(t, err)

	err = sender.Send(context.Background(), messaging.Message{From: "a@example.com", To: ""})
	assert.Error(t, err)
}

func TestSMTPSender_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	sender := messaging.NewSMTPSender(messaging.SMTPConfig{Host: "127.0.0.1", Port: addr.Port})
	err = sender.Send(context.Background(), messaging.Message{From: "a@example.com", To: "b@example.com", Text: "x"})
	assert.Error(t, err)
}
