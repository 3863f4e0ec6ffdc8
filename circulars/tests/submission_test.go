package tests

import (
	"bytes"
	"crypto/rand"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/edufleetexchange-art/Circularnest/circulars/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomPdf(t *testing.T, n int) []byte {
	data := make([]byte, n)
	_, err := rand.Read(data)
	require.NoError(t, err)
	return data
}

func holidayNotice() map[string]string {
	return map[string]string{
		"title":       "Holiday Notice",
		"description": "School closed on Friday",
		"category":    "Education",
		"orderDate":   "2024-12-20",
		"guestName":   "Ravi",
		"guestEmail":  "ravi@example.com",
	}
}

func TestGuestSubmissionApprovedAndDownloaded(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts []envOption
	}{
		{name: "database", opts: nil},
		{name: "disk", opts: []envOption{withDiskStorage()}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := setupTestEnv(t, tc.opts...)
			admin, err := env.adminClient()
			require.NoError(t, err)
			guest := env.newClient()

			data := randomPdf(t, 10240)
			submission, err := guest.guestUpload(holidayNotice(), pdfFile("notice.pdf", data))
			require.NoError(t, err)
			assert.Equal(t, schema.Pending, submission.Status)
			assert.Equal(t, "Ravi", submission.GuestName)
			assert.Equal(t, "ravi@example.com", submission.GuestEmail)
			assert.Nil(t, submission.UploadedBy)
			assert.EqualValues(t, 10240, submission.FileSize)

			pending, err := admin.listPending("?status=pending")
			require.NoError(t, err)
			require.Len(t, pending, 1)
			assert.Equal(t, submission.Id, pending[0].Id)

			preview, headers, err := admin.submissionFile(submission.Id.String())
			require.NoError(t, err)
			assert.True(t, bytes.Equal(data, preview))
			assert.True(t, strings.HasPrefix(headers.Get("Content-Disposition"), "inline"))

			circular, err := admin.approve(submission.Id.String())
			require.NoError(t, err)
			assert.Equal(t, schema.Approved, circular.Status)
			assert.True(t, circular.IsPublished)
			assert.True(t, circular.IsApprovedByAdmin)
			assert.Equal(t, "Holiday Notice", circular.Title)
			require.NotNil(t, circular.SourceSubmissionId)
			assert.Equal(t, submission.Id, *circular.SourceSubmissionId)

			pending, err = admin.listPending("")
			require.NoError(t, err)
			assert.Empty(t, pending)

			list, err := guest.listCirculars("?category=Education")
			require.NoError(t, err)
			require.Len(t, list.Circulars, 1)
			assert.Equal(t, circular.Id, list.Circulars[0].Id)
			assert.Equal(t, "/api/circulars/"+circular.Id.String()+"/download", list.Circulars[0].FileUrl)

			downloaded, headers, err := guest.download(circular.Id.String())
			require.NoError(t, err)
			assert.True(t, bytes.Equal(data, downloaded))
			assert.Equal(t, "application/pdf", headers.Get("Content-Type"))
			assert.Equal(t, "10240", headers.Get("Content-Length"))
			assert.True(t, strings.HasPrefix(headers.Get("Content-Disposition"), "attachment"))

			_, err = admin.approve(submission.Id.String())
			assert.Equal(t, http.StatusBadRequest, statusOf(err))
			assert.Contains(t, err.Error(), "already been reviewed")
		})
	}
}

func TestGuestSubmissionValidation(t *testing.T) {
	env := setupTestEnv(t)
	guest := env.newClient()
	data := randomPdf(t, 512)

	_, err := guest.guestUpload(holidayNotice(), nil)
	assert.Equal(t, http.StatusBadRequest, statusOf(err))
	assert.Contains(t, err.Error(), "Please upload a PDF file")

	_, err = guest.guestUpload(holidayNotice(), &uploadFile{name: "notes.txt", contentType: "text/plain", data: data})
	assert.Equal(t, http.StatusBadRequest, statusOf(err))

	fields := holidayNotice()
	fields["title"] = "   "
	_, err = guest.guestUpload(fields, pdfFile("notice.pdf", data))
	assert.Equal(t, http.StatusBadRequest, statusOf(err))
	assert.Contains(t, err.Error(), "Please provide title, description, and category")

	fields = holidayNotice()
	fields["guestEmail"] = "not-an-email"
	_, err = guest.guestUpload(fields, pdfFile("notice.pdf", data))
	assert.Equal(t, http.StatusBadRequest, statusOf(err))
	assert.Contains(t, err.Error(), "Invalid email format")

	fields = holidayNotice()
	fields["orderDate"] = "yesterday"
	_, err = guest.guestUpload(fields, pdfFile("notice.pdf", data))
	assert.Equal(t, http.StatusBadRequest, statusOf(err))

	err = guest.Post("/api/pending/guest-upload").Json(holidayNotice()).Do(nil)
	assert.Equal(t, http.StatusBadRequest, statusOf(err))

	fields = holidayNotice()
	delete(fields, "guestName")
	delete(fields, "guestEmail")
	submission, err := guest.guestUpload(fields, pdfFile("notice.pdf", data))
	require.NoError(t, err)
	assert.Equal(t, schema.AnonymousGuest, submission.GuestName)

	var blobs int64
	require.NoError(t, env.db.Table("blob_files").Count(&blobs).Error)
	assert.EqualValues(t, 1, blobs, "rejected uploads must not leave stored files")
}

func TestOversizedFieldRejected(t *testing.T) {
	env := setupTestEnv(t)
	guest := env.newClient()
	data := randomPdf(t, 512)

	fields := holidayNotice()
	fields["description"] = strings.Repeat("a", 64*1024+1)
	_, err := guest.guestUpload(fields, pdfFile("notice.pdf", data))
	assert.Equal(t, http.StatusBadRequest, statusOf(err))
	assert.Contains(t, err.Error(), "'description' exceeds the maximum length")

	fields["description"] = strings.Repeat("a", 64*1024)
	submission, err := guest.guestUpload(fields, pdfFile("notice.pdf", data))
	require.NoError(t, err)
	assert.Len(t, submission.Description, 64*1024)
}

func TestUploadTooLarge(t *testing.T) {
	env := setupTestEnv(t, withMaxUpload(64*1024))
	guest := env.newClient()

	_, err := guest.guestUpload(holidayNotice(), pdfFile("notice.pdf", randomPdf(t, 128*1024)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, statusOf(err))

	_, err = guest.guestUpload(holidayNotice(), pdfFile("notice.pdf", randomPdf(t, 16*1024)))
	assert.NoError(t, err)
}

func TestGuestUploadRateLimit(t *testing.T) {
	env := setupTestEnv(t, withGuestLimit(2))
	guest := env.newClient()
	data := randomPdf(t, 256)

	for i := 0; i < 2; i++ {
		_, err := guest.guestUpload(holidayNotice(), pdfFile("notice.pdf", data))
		require.NoError(t, err)
	}

	_, err := guest.guestUpload(holidayNotice(), pdfFile("notice.pdf", data))
	assert.Equal(t, http.StatusTooManyRequests, statusOf(err))
}

func TestAuthenticatedSubmission(t *testing.T) {
	env := setupTestEnv(t)
	user, err := env.newUser("greenfield")
	require.NoError(t, err)
	data := randomPdf(t, 2048)

	submission, err := user.submit(holidayNotice(), pdfFile("notice.pdf", data))
	require.NoError(t, err)
	require.NotNil(t, submission.UploadedBy)
	assert.Equal(t, user.user.Id, *submission.UploadedBy)
	assert.Empty(t, submission.GuestName)
	assert.Empty(t, submission.GuestEmail)

	// An invalid token falls back to a guest submission.
	anonymous := env.newClient()
	anonymous.authToken = "not-a-token"
	submission, err = anonymous.submit(holidayNotice(), pdfFile("notice.pdf", data))
	require.NoError(t, err)
	assert.Nil(t, submission.UploadedBy)
	assert.Equal(t, "Ravi", submission.GuestName)
}

func TestRejectSubmission(t *testing.T) {
	env := setupTestEnv(t)
	admin, err := env.adminClient()
	require.NoError(t, err)
	user, err := env.newUser("greenfield")
	require.NoError(t, err)

	submission, err := user.submit(holidayNotice(), pdfFile("notice.pdf", randomPdf(t, 1024)))
	require.NoError(t, err)

	rejected, err := admin.reject(submission.Id.String(), "  Duplicate notice ")
	require.NoError(t, err)
	assert.Equal(t, schema.Rejected, rejected.Status)
	assert.False(t, rejected.IsPublished)
	assert.False(t, rejected.IsApprovedByAdmin)
	assert.Equal(t, "Duplicate notice", rejected.ReviewNotes)

	_, err = admin.approve(submission.Id.String())
	assert.Equal(t, http.StatusBadRequest, statusOf(err))

	// Rejected circulars are retained but never listed.
	list, err := user.listCirculars("")
	require.NoError(t, err)
	assert.Empty(t, list.Circulars)
	list, err = user.listCirculars("?status=rejected")
	require.NoError(t, err)
	assert.Empty(t, list.Circulars)

	_, err = user.getCircular(rejected.Id.String())
	assert.NoError(t, err)

	// Rejecting without a body is allowed.
	other, err := user.submit(holidayNotice(), pdfFile("notice.pdf", randomPdf(t, 1024)))
	require.NoError(t, err)
	err = admin.Put("/api/pending/" + other.Id.String() + "/reject").Do(nil)
	require.NoError(t, err)

	history, err := user.mySubmissions()
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, entry := range history {
		assert.Equal(t, "circular", entry.Kind)
		require.NotNil(t, entry.Circular)
		assert.Equal(t, schema.Rejected, entry.Circular.Status)
	}
}

func TestReviewErrors(t *testing.T) {
	env := setupTestEnv(t)
	admin, err := env.adminClient()
	require.NoError(t, err)
	user, err := env.newUser("greenfield")
	require.NoError(t, err)

	submission, err := user.submit(holidayNotice(), pdfFile("notice.pdf", randomPdf(t, 1024)))
	require.NoError(t, err)

	_, err = user.approve(submission.Id.String())
	assert.Equal(t, http.StatusForbidden, statusOf(err))

	anon1 := env.newClient()
	_, err = anon1.approve(submission.Id.String())
	assert.Equal(t, http.StatusUnauthorized, statusOf(err))

	_, err = admin.approve("c6b1fa5e-3b8e-4f0e-8a44-1f1b3f0a1a11")
	assert.Equal(t, http.StatusNotFound, statusOf(err))

	_, err = admin.approve("not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, statusOf(err))

	_, err = admin.listPending("?status=archived")
	assert.Equal(t, http.StatusBadRequest, statusOf(err))
	assert.Contains(t, err.Error(), "Invalid status. Must be pending, approved, or rejected")
}

func TestConcurrentApproval(t *testing.T) {
	env := setupTestEnv(t)
	admin, err := env.adminClient()
	require.NoError(t, err)

	anon2 := env.newClient()
	submission, err := anon2.guestUpload(holidayNotice(), pdfFile("notice.pdf", randomPdf(t, 4096)))
	require.NoError(t, err)

	const reviewers = 6
	statuses := make([]int, reviewers)
	wg := sync.WaitGroup{}
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := admin.approve(submission.Id.String())
			statuses[i] = statusOf(err)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, status := range statuses {
		if status == http.StatusOK {
			succeeded++
		} else {
			assert.Equal(t, http.StatusBadRequest, status)
		}
	}
	assert.Equal(t, 1, succeeded)

	list, err := admin.listCirculars("")
	require.NoError(t, err)
	assert.Len(t, list.Circulars, 1)
}

func TestDeleteSubmission(t *testing.T) {
	env := setupTestEnv(t)
	admin, err := env.adminClient()
	require.NoError(t, err)
	owner, err := env.newUser("greenfield")
	require.NoError(t, err)
	other, err := env.newUser("riverside")
	require.NoError(t, err)

	submission, err := owner.submit(holidayNotice(), pdfFile("notice.pdf", randomPdf(t, 1024)))
	require.NoError(t, err)

	anon3 := env.newClient()
	err = anon3.deleteSubmission(submission.Id.String())
	assert.Equal(t, http.StatusUnauthorized, statusOf(err))

	err = other.deleteSubmission(submission.Id.String())
	assert.Equal(t, http.StatusForbidden, statusOf(err))
	assert.Contains(t, err.Error(), "Not authorized to delete this submission")

	require.NoError(t, owner.deleteSubmission(submission.Id.String()))

	err = owner.deleteSubmission(submission.Id.String())
	assert.Equal(t, http.StatusNotFound, statusOf(err))

	// Guest submissions can only be removed by an admin.
	anon4 := env.newClient()
	guestSubmission, err := anon4.guestUpload(holidayNotice(), pdfFile("notice.pdf", randomPdf(t, 1024)))
	require.NoError(t, err)

	err = owner.deleteSubmission(guestSubmission.Id.String())
	assert.Equal(t, http.StatusForbidden, statusOf(err))

	require.NoError(t, admin.deleteSubmission(guestSubmission.Id.String()))

	var blobs int64
	require.NoError(t, env.db.Table("blob_files").Count(&blobs).Error)
	assert.EqualValues(t, 0, blobs)
}

func TestMySubmissions(t *testing.T) {
	env := setupTestEnv(t)
	admin, err := env.adminClient()
	require.NoError(t, err)
	user, err := env.newUser("greenfield")
	require.NoError(t, err)
	other, err := env.newUser("riverside")
	require.NoError(t, err)

	first, err := user.submit(holidayNotice(), pdfFile("first.pdf", randomPdf(t, 1024)))
	require.NoError(t, err)
	second, err := user.submit(holidayNotice(), pdfFile("second.pdf", randomPdf(t, 1024)))
	require.NoError(t, err)
	_, err = other.submit(holidayNotice(), pdfFile("other.pdf", randomPdf(t, 1024)))
	require.NoError(t, err)

	approved, err := admin.approve(first.Id.String())
	require.NoError(t, err)

	history, err := user.mySubmissions()
	require.NoError(t, err)
	require.Len(t, history, 2)

	kinds := map[string]string{}
	for _, entry := range history {
		if entry.Submission != nil {
			kinds[entry.Submission.Id.String()] = entry.Kind
		} else {
			kinds[entry.Circular.Id.String()] = entry.Kind
		}
	}
	assert.Equal(t, "submission", kinds[second.Id.String()])
	assert.Equal(t, "circular", kinds[approved.Id.String()])

	anon5 := env.newClient()
	_, err = anon5.mySubmissions()
	assert.Equal(t, http.StatusUnauthorized, statusOf(err))
}
