package speech

import "errors"

var (
	ErrDuplicateSession = errors.New("speech session already active for room")
	ErrSessionNotFound  = errors.New("speech session not found")
	ErrSessionClosed    = errors.New("speech session closed")
	ErrRoomUnavailable  = errors.New("room not available for speech")
	ErrBufferFull       = errors.New("speech buffer limit reached")
	ErrOddFrame         = errors.New("pcm frame has odd length")
	ErrUpstream         = errors.New("transcription upstream error")
)
