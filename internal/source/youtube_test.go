package source

import (
	"errors"
	"testing"

	"github.com/kkdai/youtube/v2"
)

func TestPickAudioFormat(t *testing.T) {
	t.Run("highest_bitrate_audio_only", func(t *testing.T) {
		formats := youtube.FormatList{
			{ItagNo: 18, MimeType: `video/mp4; codecs="avc1.42001E, mp4a.40.2"`, Bitrate: 500000, AudioChannels: 2},
			{ItagNo: 140, MimeType: `audio/mp4; codecs="mp4a.40.2"`, Bitrate: 130000, AudioChannels: 2},
			{ItagNo: 251, MimeType: `audio/webm; codecs="opus"`, Bitrate: 160000, AudioChannels: 2},
		}
		f, err := pickAudioFormat(formats)
		if err != nil {
			t.Fatal(err)
		}
		if f.ItagNo != 251 {
			t.Errorf("itag = %d, want 251", f.ItagNo)
		}
	})

	t.Run("falls_back_to_muxed", func(t *testing.T) {
		formats := youtube.FormatList{
			{ItagNo: 137, MimeType: "video/mp4", Bitrate: 4000000},
			{ItagNo: 18, MimeType: "video/mp4", Bitrate: 500000, AudioChannels: 2},
		}
		f, err := pickAudioFormat(formats)
		if err != nil {
			t.Fatal(err)
		}
		if f.ItagNo != 18 {
			t.Errorf("itag = %d, want 18", f.ItagNo)
		}
	})

	t.Run("no_audio", func(t *testing.T) {
		_, err := pickAudioFormat(youtube.FormatList{{ItagNo: 137, MimeType: "video/mp4"}})
		if !errors.Is(err, errNoAudio) {
			t.Errorf("err = %v, want errNoAudio", err)
		}
	})
}
