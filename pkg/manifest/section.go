package manifest

import "strings"

const (
	sectionNameUpdate  = "update"
	sectionNameKeyring = "keyring"
	sectionNameHandler = "handler"

	imagePrefix = "image"
	filePrefix  = "file"
)

// sectionKind is the closed set of section types a manifest may contain.
type sectionKind int

const (
	// sectionIgnored covers every name this version does not understand.
	// Such sections are skipped so older tools accept newer bundles.
	sectionIgnored sectionKind = iota
	sectionUpdate
	sectionKeyring
	sectionHandler
	sectionImage
	sectionFile
)

func (k sectionKind) String() string {
	switch k {
	case sectionUpdate:
		return "update"
	case sectionKeyring:
		return "keyring"
	case sectionHandler:
		return "handler"
	case sectionImage:
		return "image"
	case sectionFile:
		return "file"
	default:
		return "ignored"
	}
}

// section is a classified section header.
type section struct {
	kind      sectionKind
	slotClass string // image and file sections
	destName  string // file sections
}

// classifySection maps a section header to its kind.
//
// "image.<slotclass>" and "file.<slotclass>/<destname>" are split on the
// first '.' and, for files, the first '/'. Headers that do not fit, or that
// leave the slot class or destination empty, are ignored.
func classifySection(name string) section {
	switch name {
	case sectionNameUpdate:
		return section{kind: sectionUpdate}
	case sectionNameKeyring:
		return section{kind: sectionKeyring}
	case sectionNameHandler:
		return section{kind: sectionHandler}
	}

	prefix, rest, ok := strings.Cut(name, ".")
	if !ok || rest == "" {
		return section{kind: sectionIgnored}
	}

	switch prefix {
	case imagePrefix:
		return section{kind: sectionImage, slotClass: rest}
	case filePrefix:
		slotClass, destName, ok := strings.Cut(rest, "/")
		if !ok || slotClass == "" || destName == "" {
			return section{kind: sectionIgnored}
		}
		return section{kind: sectionFile, slotClass: slotClass, destName: destName}
	default:
		return section{kind: sectionIgnored}
	}
}

func imageSectionName(slotClass string) string {
	return imagePrefix + "." + slotClass
}

func fileSectionName(slotClass, destName string) string {
	return filePrefix + "." + slotClass + "/" + destName
}
