package storage

import (
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// ChatFilesPrefix is the key prefix of chat attachments. They are only served
// through the chat API, never from the public media directory.
const ChatFilesPrefix = "chatFiles/"

// publicFS serves regular files from root. Directories and keys under a
// private prefix look like missing files.
type publicFS struct {
	root    http.FileSystem
	private []string
}

// PublicFS returns a FileSystem over dir for http.FileServer that never lists
// directories and hides keys starting with any of the private prefixes.
func PublicFS(dir string, private ...string) http.FileSystem {
	return publicFS{root: http.Dir(dir), private: private}
}

// MediaHandler serves the public files under dir at the URL prefix. Chat
// files are excluded.
func MediaHandler(prefix, dir string) http.Handler {
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	return http.StripPrefix(prefix, http.FileServer(PublicFS(dir, ChatFilesPrefix)))
}

func (p publicFS) Open(name string) (http.File, error) {
	key := strings.TrimPrefix(path.Clean("/"+name), "/")
	for _, prefix := range p.private {
		if key+"/" == prefix || strings.HasPrefix(key, prefix) {
			return nil, fs.ErrNotExist
		}
	}

	f, err := p.root.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}
