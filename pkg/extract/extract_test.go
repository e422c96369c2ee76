package extract_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/folio/pkg/extract"
)

var _ = Describe("Extract", func() {
	It("splits plain text into blank-line blocks", func() {
		blocks, err := extract.Extract("notes.txt", []byte("first block\nstill first\n\nsecond block\n\n\nthird block"))
		Expect(err).NotTo(HaveOccurred())
		Expect(blocks).To(Equal([]string{
			"first block\nstill first",
			"second block",
			"third block",
		}))
	})

	It("accepts markdown extensions", func() {
		for _, name := range []string{"doc.md", "doc.markdown", "DOC.MD"} {
			blocks, err := extract.Extract(name, []byte("# Title\n\nBody"))
			Expect(err).NotTo(HaveOccurred(), name)
			Expect(blocks).To(Equal([]string{"# Title", "Body"}))
		}
	})

	It("treats a file without an extension as plain text", func() {
		blocks, err := extract.Extract("README", []byte("hello"))
		Expect(err).NotTo(HaveOccurred())
		Expect(blocks).To(Equal([]string{"hello"}))
	})

	It("normalizes CRLF line endings", func() {
		blocks, err := extract.Extract("win.txt", []byte("one\r\n\r\ntwo"))
		Expect(err).NotTo(HaveOccurred())
		Expect(blocks).To(Equal([]string{"one", "two"}))
	})

	It("rejects unsupported extensions", func() {
		_, err := extract.Extract("report.pdf", []byte("%PDF-1.4"))
		Expect(err).To(MatchError(extract.ErrUnsupportedFormat))
	})

	It("rejects invalid UTF-8", func() {
		_, err := extract.Extract("garbage.txt", []byte{0xff, 0xfe, 0xfd})
		Expect(err).To(MatchError(extract.ErrExtractionFailed))
	})

	It("returns no blocks for whitespace-only input", func() {
		blocks, err := extract.Extract("blank.txt", []byte("  \n\n \t \n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(blocks).To(BeEmpty())
	})
})
