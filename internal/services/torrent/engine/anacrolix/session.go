package anacrolix

import (
	"strings"
	"time"

	"github.com/anacrolix/torrent"

	"magnetcast/internal/domain"
	"magnetcast/internal/domain/ports"
)

// startupHighBytes is the size of the leading span of the selected file that
// gets the highest piece priority, so playback can begin before the bulk of
// the file arrives.
const startupHighBytes int64 = 8 << 20

type Session struct {
	engine  *Engine
	torrent *torrent.Torrent
	id      domain.SessionID
}

func (s *Session) ID() domain.SessionID {
	return s.id
}

func (s *Session) Name() string {
	if s.torrent == nil {
		return ""
	}
	return s.torrent.Name()
}

func (s *Session) Files() []domain.FileRef {
	return mapFiles(s.torrent)
}

// SingleFile reports whether the torrent's root entity is a bare file.
// Multi-file torrents nest every path under the torrent name; a bare file's
// path is exactly the torrent name with no separator.
func (s *Session) SingleFile() bool {
	if !torrentInfoReady(s.torrent) {
		return false
	}
	files := s.torrent.Files()
	if len(files) != 1 {
		return false
	}
	return !strings.ContainsRune(files[0].Path(), '/')
}

// Select marks only the chosen file's pieces for download. The leading span
// gets PiecePriorityNow so a player can start quickly; the rest of the file
// downloads at normal priority. Other files stay deselected.
func (s *Session) Select(file domain.FileRef) {
	if !torrentInfoReady(s.torrent) {
		return
	}
	files := s.torrent.Files()
	if file.Index < 0 || file.Index >= len(files) {
		return
	}

	f := files[file.Index]
	f.SetPriority(torrent.PiecePriorityNormal)
	s.prioritizeSpan(f, 0, startupHighBytes, torrent.PiecePriorityNow)
}

// prioritizeSpan raises the priority of the pieces covering [off, off+length)
// within the file.
func (s *Session) prioritizeSpan(f *torrent.File, off, length int64, prio torrent.PiecePriority) {
	pieceSize := int64(s.torrent.Info().PieceLength)
	if pieceSize <= 0 || length <= 0 {
		return
	}
	start := f.Offset() + off
	end := start + length
	if fileEnd := f.Offset() + f.Length(); end > fileEnd {
		end = fileEnd
	}
	if end <= start {
		return
	}

	startPiece := int(start / pieceSize)
	endPiece := int((end + pieceSize - 1) / pieceSize)
	if n := s.torrent.NumPieces(); endPiece > n {
		endPiece = n
	}
	for i := startPiece; i < endPiece; i++ {
		s.torrent.Piece(i).SetPriority(prio)
	}
}

func (s *Session) Stats() domain.SwarmStats {
	if s.torrent == nil {
		return domain.SwarmStats{}
	}
	stats := s.torrent.Stats()

	progress := float64(0)
	if torrentInfoReady(s.torrent) && s.torrent.Length() > 0 {
		progress = float64(s.torrent.BytesCompleted()) / float64(s.torrent.Length())
	}

	download, upload := s.engine.sampleSpeed(s.id, stats, time.Now().UTC())
	return domain.SwarmStats{
		Progress:      progress,
		DownloadSpeed: download,
		UploadSpeed:   upload,
		Peers:         stats.ActivePeers,
	}
}

func (s *Session) FileDone(file domain.FileRef) bool {
	if !torrentInfoReady(s.torrent) {
		return false
	}
	files := s.torrent.Files()
	if file.Index < 0 || file.Index >= len(files) {
		return false
	}
	f := files[file.Index]
	return f.Length() > 0 && f.BytesCompleted() >= f.Length()
}

func (s *Session) NewReader(file domain.FileRef) (ports.StreamReader, error) {
	if !torrentInfoReady(s.torrent) {
		return nil, domain.ErrNotFound
	}
	files := s.torrent.Files()
	if file.Index < 0 || file.Index >= len(files) {
		return nil, domain.ErrNotFound
	}
	return files[file.Index].NewReader(), nil
}

func (s *Session) Drop() error {
	if s.torrent != nil {
		s.torrent.Drop()
	}
	if s.engine != nil {
		s.engine.forgetSpeed(s.id)
	}
	return nil
}
