package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/yusinv/wyoming-giga-am-ctc/internal/audio"
	"github.com/yusinv/wyoming-giga-am-ctc/internal/protocol"
	"github.com/yusinv/wyoming-giga-am-ctc/internal/server"
)

const chunkSamples = 1024

func main() {
	uri := flag.String("uri", "tcp://127.0.0.1:10300", "Server URI (tcp://host:port or unix:///path)")
	language := flag.String("language", "", "Transcription language hint")
	describe := flag.Bool("describe", false, "Query server capabilities and exit")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall operation timeout")
	flag.Parse()

	if err := run(*uri, *language, *describe, *timeout, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(uri, language string, describe bool, timeout time.Duration, args []string) error {
	network, address, err := server.ParseListenURI(uri)
	if err != nil {
		return err
	}

	conn, err := net.DialTimeout(network, address, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", uri, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	reader := protocol.NewReader(conn, protocol.DefaultLimits())
	writer := protocol.NewWriter(conn)

	if describe {
		return printCapabilities(reader, writer)
	}

	if len(args) != 1 {
		return fmt.Errorf("usage: sttclient [flags] <audio.wav>")
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read audio file: %w", err)
	}
	pcm, format, err := audio.DecodeWAV(data)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", args[0], err)
	}

	transcript, err := transcribe(reader, writer, pcm, format, language)
	if err != nil {
		return err
	}

	fmt.Println(transcript.Text)
	return nil
}

func printCapabilities(reader *protocol.Reader, writer *protocol.Writer) error {
	if err := writer.WriteEvent(protocol.NewDescribe()); err != nil {
		return err
	}

	event, err := reader.ReadEvent()
	if err != nil {
		return err
	}
	info, err := protocol.ParseInfo(event)
	if err != nil {
		return err
	}

	for _, program := range info.ASR {
		fmt.Printf("%s (%s)\n", program.Name, program.Attribution.Name)
		for _, model := range program.Models {
			fmt.Printf("  %s: %s, languages %v\n", model.Name, model.Description, model.Languages)
		}
	}
	return nil
}

func transcribe(reader *protocol.Reader, writer *protocol.Writer, pcm []byte, format audio.Format, language string) (*protocol.TranscriptData, error) {
	wireFormat := protocol.AudioFormat{
		Rate:     format.Rate,
		Width:    format.Width,
		Channels: format.Channels,
	}

	if language != "" {
		event, err := protocol.NewTranscribe("", language)
		if err != nil {
			return nil, err
		}
		if err := writer.WriteEvent(event); err != nil {
			return nil, err
		}
	}

	event, err := protocol.NewAudioStart(wireFormat)
	if err != nil {
		return nil, err
	}
	if err := writer.WriteEvent(event); err != nil {
		return nil, err
	}

	chunkBytes := chunkSamples * format.BlockAlign()
	for off := 0; off < len(pcm); off += chunkBytes {
		end := off + chunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		chunk, err := protocol.NewAudioChunk(wireFormat, pcm[off:end])
		if err != nil {
			return nil, err
		}
		if err := writer.WriteEvent(chunk); err != nil {
			return nil, err
		}
	}

	if err := writer.WriteEvent(protocol.NewAudioStop()); err != nil {
		return nil, err
	}

	// The server may interleave error notices before the transcript
	for {
		event, err := reader.ReadEvent()
		if err != nil {
			return nil, err
		}
		switch event.Type {
		case protocol.TypeTranscript:
			return protocol.ParseTranscript(event)
		case protocol.TypeError:
			errData, err := protocol.ParseError(event)
			if err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("server error (%s): %s", errData.Code, errData.Message)
		default:
			// Ignore unrelated events such as info
		}
	}
}
