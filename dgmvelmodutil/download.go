/*
Copyright © 2023 the dgmvelmod authors.
This file is part of dgmvelmod.

dgmvelmod is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

dgmvelmod is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with dgmvelmod.  If not, see <http://www.gnu.org/licenses/>.
*/

package dgmvelmodutil

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/cenkalti/backoff"
	"github.com/google/go-cloud/blob"
	"github.com/google/go-cloud/blob/fileblob"
	"github.com/google/go-cloud/blob/gcsblob"
	"github.com/google/go-cloud/blob/s3blob"
	"github.com/google/go-cloud/gcp"
	"github.com/sirupsen/logrus"
)

// zmapSuffixes are the ZIP archive members worth extracting: the UTM31
// depth grids of DGM-diep and the VELMOD ZMAP data files.
var zmapSuffixes = []string{"on_offshore_merge_DGM50_ED50_UTM31.zmap", ".dat"}

// DownloadModelFiles fetches the published model archives listed in
// downloads (dataset name to URL list) into dir and extracts the ZMAP
// members. Archives and members that already exist locally are skipped,
// so interrupted downloads can be resumed.
func DownloadModelFiles(ctx context.Context, downloads map[string][]string, dir string) error {
	for dataset, urls := range downloads {
		folder := filepath.Join(dir, dataset)
		if err := os.MkdirAll(folder, 0o755); err != nil {
			return fmt.Errorf("dgmvelmodutil: creating download directory: %v", err)
		}
		for _, u := range urls {
			archive := filepath.Join(folder, filepath.Base(mustParsePath(u)))
			if _, err := os.Stat(archive); os.IsNotExist(err) {
				logrus.WithFields(logrus.Fields{"url": u, "file": archive}).Info("dgmvelmod: downloading")
				if err := fetchFile(ctx, u, archive); err != nil {
					return err
				}
			} else {
				logrus.WithField("file", archive).Info("dgmvelmod: archive exists, skipped")
			}
			if err := extractZmaps(archive, folder); err != nil {
				return err
			}
		}
	}
	return nil
}

func mustParsePath(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return rawurl
	}
	return u.Path
}

// fetchFile downloads rawurl to dest, retrying transient failures with
// exponential backoff.
func fetchFile(ctx context.Context, rawurl, dest string) error {
	op := func() error {
		req, err := http.NewRequest(http.MethodGet, rawurl, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := http.DefaultClient.Do(req.WithContext(ctx))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status %s", resp.Status)
		}
		w, err := os.Create(dest)
		if err != nil {
			return backoff.Permanent(err)
		}
		if _, err := io.Copy(w, resp.Body); err != nil {
			w.Close()
			os.Remove(dest)
			return err
		}
		return w.Close()
	}
	err := backoff.RetryNotify(op, backoff.NewExponentialBackOff(),
		func(err error, _ time.Duration) {
			logrus.WithError(err).Warnf("dgmvelmod: download %s failed, retrying", rawurl)
		})
	if err != nil {
		return fmt.Errorf("dgmvelmodutil: downloading %s: %v", rawurl, err)
	}
	return nil
}

// extractZmaps extracts the ZMAP members of the given ZIP archive into
// folder, skipping members that already exist.
func extractZmaps(archive, folder string) error {
	z, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("dgmvelmodutil: opening archive %s: %v", archive, err)
	}
	defer z.Close()
	for _, member := range z.File {
		if !hasAnySuffix(member.Name, zmapSuffixes) {
			continue
		}
		target := filepath.Join(folder, filepath.FromSlash(member.Name))
		if !strings.HasPrefix(target, filepath.Clean(folder)+string(os.PathSeparator)) {
			return fmt.Errorf("dgmvelmodutil: archive member %q escapes extraction directory", member.Name)
		}
		if _, err := os.Stat(target); err == nil {
			logrus.WithField("file", target).Info("dgmvelmod: file exists, skipped")
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		r, err := member.Open()
		if err != nil {
			return fmt.Errorf("dgmvelmodutil: extracting %s: %v", member.Name, err)
		}
		w, err := os.Create(target)
		if err != nil {
			r.Close()
			return err
		}
		_, err = io.Copy(w, r)
		r.Close()
		w.Close()
		if err != nil {
			return fmt.Errorf("dgmvelmodutil: extracting %s: %v", member.Name, err)
		}
		logrus.WithField("file", target).Info("dgmvelmod: extracted")
	}
	return nil
}

func hasAnySuffix(name string, suffixes []string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// maybeDownload checks whether path is an existing local file, and if
// not, whether it is an http(s) or blob URL. URLs are downloaded to a
// temporary directory and the local path is returned.
func maybeDownload(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return path, nil
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		dir, err := ioutil.TempDir("", "dgmvelmod")
		if err != nil {
			return "", fmt.Errorf("dgmvelmodutil: creating temporary download directory: %v", err)
		}
		local := filepath.Join(dir, filepath.Base(mustParsePath(path)))
		if err := fetchFile(ctx, path, local); err != nil {
			return "", err
		}
		return local, nil
	}
	if isBlob(path) {
		return downloadBlob(ctx, path)
	}
	return path, nil
}

// isBlob returns whether the given path represents a blob storage
// object (i.e., it starts with 'gs://', 's3://', or 'file://').
func isBlob(path string) bool {
	return strings.HasPrefix(path, "gs://") || strings.HasPrefix(path, "s3://") || strings.HasPrefix(path, "file://")
}

// openBucket returns the blob storage bucket specified by bucketName in
// the format 'provider://name'. The accepted providers are "file" for
// the local filesystem, "gs" for Google Cloud Storage, and "s3" for
// AWS S3.
func openBucket(ctx context.Context, bucketName string) (*blob.Bucket, error) {
	u, err := url.Parse(bucketName)
	if err != nil {
		return nil, fmt.Errorf("dgmvelmodutil: parsing bucket name: %v", err)
	}
	switch u.Scheme {
	case "file":
		return fileblob.NewBucket(u.Hostname())
	case "gs":
		return gsBucket(ctx, u.Hostname())
	case "s3":
		return s3Bucket(ctx, u.Hostname())
	default:
		return nil, fmt.Errorf("dgmvelmodutil: invalid blob provider %s", u.Scheme)
	}
}

func gsBucket(ctx context.Context, name string) (*blob.Bucket, error) {
	creds, err := gcp.DefaultCredentials(ctx)
	if err != nil {
		return nil, err
	}
	c, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, err
	}
	return gcsblob.OpenBucket(ctx, name, c)
}

// s3Bucket opens an s3 storage bucket. It assumes the AWS_REGION,
// AWS_ACCESS_KEY_ID, and AWS_SECRET_ACCESS_KEY environment variables
// are set.
func s3Bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "eu-central-1"
	}
	c := &aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewEnvCredentials(),
	}
	s := session.Must(session.NewSession(c))
	return s3blob.OpenBucket(ctx, s, name)
}

// downloadBlob downloads the specified object from blob storage and
// returns the local path it was saved to.
func downloadBlob(ctx context.Context, path string) (string, error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("dgmvelmodutil: parsing blob path: %v", err)
	}
	bucket, err := openBucket(ctx, u.Scheme+"://"+u.Host)
	if err != nil {
		return "", err
	}
	dir, err := ioutil.TempDir("", "dgmvelmod")
	if err != nil {
		return "", fmt.Errorf("dgmvelmodutil: creating temporary download directory: %v", err)
	}
	local := filepath.Join(dir, filepath.Base(u.Path))
	w, err := os.Create(local)
	if err != nil {
		return "", err
	}
	r, err := bucket.NewReader(ctx, strings.TrimPrefix(u.Path, "/"))
	if err != nil {
		w.Close()
		return "", fmt.Errorf("dgmvelmodutil: opening blob %s: %v", path, err)
	}
	_, err = io.Copy(w, r)
	r.Close()
	w.Close()
	if err != nil {
		return "", fmt.Errorf("dgmvelmodutil: downloading blob %s: %v", path, err)
	}
	return local, nil
}
